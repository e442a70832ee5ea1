package ws

import (
	"log/slog"
	"net/http"

	"chat-relay/relay"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// Server upgrades HTTP requests and binds each resulting connection to the
// routing engine.
type Server struct {
	log        *slog.Logger
	engine     *relay.Engine
	validate   *validator.Validate
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewServer(log *slog.Logger, engine *relay.Engine, sendBuffer int) *Server {
	return &Server{
		log:      log,
		engine:   engine,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser frontend is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendBuffer: sendBuffer,
	}
}

// ServeWS handles a websocket upgrade request. The connection starts in
// the Anonymous state; the client announces a username with a join event.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Websocket upgrade failed", "err", err)
		return
	}
	s.log.Info("New client connected", "remote", conn.RemoteAddr())

	client := &Client{
		log:      s.log,
		conn:     conn,
		validate: s.validate,
		send:     make(chan []byte, s.sendBuffer),
	}
	client.session = s.engine.Connect(client)

	go client.writePump()
	go client.readPump()
}
