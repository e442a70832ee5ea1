//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
)

// EventSink is a live connection the relay can push events to. It is the
// opaque handle stored by the presence registry, so implementations must
// be comparable (pointer receivers are fine): disconnect resolution relies
// on handle equality, not on usernames.
type EventSink interface {
	Consume(ctx context.Context, e event.ServerEvent) error
}

// UserStore is the durable side of user presence records.
// UpsertUser is idempotent: it creates the user on first call and bumps
// LastSeen on every call.
type UserStore interface {
	UpsertUser(username string) (domain.User, error)
	Users() ([]domain.User, error)
}

// MessageStore is the narrow gateway to durable message history. The relay
// never delivers a message whose AppendMessage call did not succeed.
type MessageStore interface {
	AppendMessage(msg domain.Message) (domain.Message, error)
	AllMessages() ([]domain.Message, error)
	MessagesFor(username string) ([]domain.Message, error)
}
