// Package api exposes the read-side REST endpoints: message history and
// user records. Straight pass-throughs to the store, no routing logic.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"

	"github.com/gorilla/mux"
)

type Handler struct {
	Log      *slog.Logger
	Users    contract.UserStore
	Messages contract.MessageStore
	Monitor  *observability.Monitor
}

type RegisterUserRequest struct {
	Username string `json:"username"`
}

type RegisterUserResponse struct {
	Username string `json:"username"`
	Success  bool   `json:"success"`
}

// Register mounts all endpoints on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/messages", h.GetMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/{username}", h.GetUserMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/users", h.GetUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/users", h.RegisterUser).Methods(http.MethodPost)
	r.HandleFunc("/api/stats", h.GetStats).Methods(http.MethodGet)
}

// GetMessages returns the full history, timestamp ascending.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.Messages.AllMessages()
	if err != nil {
		h.Log.Error("Error fetching messages", "err", err)
		writeError(w, "Error fetching messages")
		return
	}
	writeJSON(w, emptyToSlice(messages))
}

// GetUserMessages returns messages where the username is sender or
// receiver, timestamp ascending.
func (h *Handler) GetUserMessages(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	messages, err := h.Messages.MessagesFor(username)
	if err != nil {
		h.Log.Error("Error fetching user messages", "username", username, "err", err)
		writeError(w, "Error fetching user messages")
		return
	}
	writeJSON(w, emptyToSlice(messages))
}

// GetUsers returns every known user, most recently seen first.
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.Users()
	if err != nil {
		h.Log.Error("Error fetching users", "err", err)
		writeError(w, "Error fetching users")
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, users)
}

// RegisterUser upserts a user by name without opening a connection.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := h.Users.UpsertUser(req.Username); err != nil {
		h.Log.Error("Error registering user", "username", req.Username, "err", err)
		writeError(w, "Error registering user")
		return
	}
	writeJSON(w, RegisterUserResponse{Username: req.Username, Success: true})
}

// GetStats returns relay counters and process metrics.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Monitor.Snapshot())
}

func emptyToSlice(messages []domain.Message) []domain.Message {
	if messages == nil {
		return []domain.Message{}
	}
	return messages
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
