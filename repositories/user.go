package repositories

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"chat-relay/domain"
	apperrors "chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
)

const userPrefix = "user:"

// UserRepository persists user records in BadgerDB, keyed by username.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// UpsertUser creates the user on first call and bumps LastSeen on every
// call. Idempotent by construction: the username is the key.
func (u UserRepository) UpsertUser(username string) (domain.User, error) {
	user := domain.User{Username: username, LastSeen: time.Now().UTC()}
	data, err := json.Marshal(user)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", apperrors.ErrUpsertUser, err)
	}
	err = u.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(userPrefix+username), data)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", apperrors.ErrUpsertUser, err)
	}
	return user, nil
}

// Users returns every known user, most recently seen first.
func (u UserRepository) Users() ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var user domain.User
				if err := json.Unmarshal(value, &user); err != nil {
					return err
				}
				users = append(users, user)
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
	sort.Slice(users, func(i, j int) bool {
		return users[i].LastSeen.After(users[j].LastSeen)
	})
	return users, nil
}
