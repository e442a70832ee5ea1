// Package domain contains core concepts of the chat relay.
// This file defines Message records. Messages are immutable once appended.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a chat record, public or private. ReceiverName is empty for
// public room messages. Status is a free-form tag set by the sender
// (delivery state rendered by clients); the relay never interprets it.
type Message struct {
	ID           uuid.UUID `json:"id"`
	SenderName   string    `json:"senderName"`
	ReceiverName string    `json:"receiverName,omitempty"`
	Body         string    `json:"message"`
	Status       string    `json:"status,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Private reports whether the message targets a single receiver.
func (m Message) Private() bool {
	return m.ReceiverName != ""
}

// Involves reports whether username is the sender or the receiver.
func (m Message) Involves(username string) bool {
	return m.SenderName == username || m.ReceiverName == username
}
