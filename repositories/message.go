package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"
	apperrors "chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const messagePrefix = "msg:"

// MessageRepository persists chat messages in BadgerDB. It is the durable
// half of the persist-then-deliver contract: the relay only ever fans out
// messages this repository acknowledged.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// AppendMessage assigns the record id and timestamp and persists it.
// The key is formatted as "msg:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func (m MessageRepository) AppendMessage(msg domain.Message) (domain.Message, error) {
	msg.ID = uuid.New()
	msg.Timestamp = time.Now().UTC()

	key := fmt.Sprintf("%s%019d:%s", messagePrefix, msg.Timestamp.UnixNano(), msg.ID)
	bytes, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", apperrors.ErrAppendMessage, err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", apperrors.ErrAppendMessage, err)
	}
	return msg, nil
}

// AllMessages returns the full history, timestamp ascending. Thanks to the
// padded timestamp in the key, a forward prefix scan is already sorted.
func (m MessageRepository) AllMessages() ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MessagesFor returns the history where username is sender or receiver,
// timestamp ascending.
func (m MessageRepository) MessagesFor(username string) ([]domain.Message, error) {
	messages, err := m.AllMessages()
	if err != nil {
		return nil, err
	}
	filtered := lo.Filter(messages, func(msg domain.Message, _ int) bool {
		return msg.Involves(username)
	})
	m.log.Debug("Filtered message history", "username", username, "count", len(filtered))
	return filtered, nil
}
