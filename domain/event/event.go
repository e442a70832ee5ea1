// Package event defines the events exchanged between the relay core and
// its connections. Field names follow the wire schema clients already
// speak, so these structs marshal directly into outbound frames.
package event

// Name identifies an event on the wire.
type Name string

const (
	NameJoin           Name = "join"
	NameMessage        Name = "message"
	NamePrivateMessage Name = "privateMessage"
	NameUserJoined     Name = "userJoined"
	NameUserLeft       Name = "userLeft"
	NameError          Name = "error"
)

// ServerEvent is anything the relay can push to a connection.
type ServerEvent interface {
	EventName() Name
}

// Join announces a username for the sending connection. Inbound only.
type Join struct {
	SenderName string `json:"senderName" validate:"required"`
}

// RoomMessage is a public message, broadcast to everyone in the room.
// The relay re-emits the client-submitted payload untouched.
type RoomMessage struct {
	SenderName string `json:"senderName" validate:"required"`
	Body       string `json:"message"`
	Status     string `json:"status,omitempty"`
}

func (RoomMessage) EventName() Name { return NameMessage }

// Direct is a private message, delivered to one receiver plus an echo to
// the sender.
type Direct struct {
	SenderName   string `json:"senderName" validate:"required"`
	ReceiverName string `json:"receiverName" validate:"required"`
	Body         string `json:"message"`
	Status       string `json:"status,omitempty"`
}

func (Direct) EventName() Name { return NamePrivateMessage }

// UserJoined notifies every open connection that a username came online.
type UserJoined struct {
	SenderName string `json:"senderName"`
}

func (UserJoined) EventName() Name { return NameUserJoined }

// UserLeft notifies every remaining connection that a username went away.
type UserLeft struct {
	SenderName string `json:"senderName"`
}

func (UserLeft) EventName() Name { return NameUserLeft }
