package main

import (
	"log"
	"log/slog"
	"os"

	"chat-relay/internal"
	"chat-relay/repositories"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

// viewer dumps the chat history and user records from Badger as tables.
// It opens the database read-only so it can run next to a live server.
func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening if another process (the server)
	// holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	users, err := repositories.NewUserRepository(db).Users()
	if err != nil {
		log.Fatalf("Failed to read users: %v", err)
	}
	messages, err := repositories.NewMessageRepository(db, slog.Default()).AllMessages()
	if err != nil {
		log.Fatalf("Failed to read messages: %v", err)
	}

	color.Cyan.Printf("Users (%d)\n", len(users))
	userTable := tablewriter.NewWriter(os.Stdout)
	userTable.SetHeader([]string{"Username", "Last seen"})
	for _, u := range users {
		userTable.Append([]string{u.Username, u.LastSeen.Format("2006-01-02 15:04:05")})
	}
	userTable.Render()

	color.Cyan.Printf("\nMessages (%d)\n", len(messages))
	msgTable := tablewriter.NewWriter(os.Stdout)
	msgTable.SetHeader([]string{"Time", "Sender", "Receiver", "Message", "Status"})
	for _, m := range messages {
		receiver := m.ReceiverName
		if receiver == "" {
			receiver = color.Gray.Sprint("room")
		}
		msgTable.Append([]string{
			m.Timestamp.Format("15:04:05"),
			m.SenderName,
			receiver,
			m.Body,
			m.Status,
		})
	}
	msgTable.Render()
}
