//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-dm/domain"
	"chat-dm/errors"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	userPrefix      = "user:id:"
	userEmailPrefix = "user:email:"
	userNamePrefix  = "user:name:"
)

type IUserRepository interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserPresence(ctx context.Context, id string, presence domain.Presence) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the stored account record.
// The core only ever sees its Identity.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsOnline     bool
	LastSeen     *time.Time
	CreatedAt    time.Time
}

func (u User) Identity() domain.User {
	return domain.User{ID: u.ID, Username: u.Username}
}

// CreateUser persists a new account with its email and username unique indexes.
// Both indexes are case-insensitive.
func (u *UserRepository) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	err := u.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte(userEmailPrefix + normalize(email))
		nameKey := []byte(userNamePrefix + normalize(username))
		for _, key := range [][]byte{emailKey, nameKey} {
			if _, err := txn.Get(key); err == nil {
				return errors.ErrUserAlreadyExists
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		if err := txn.Set(emailKey, []byte(user.ID)); err != nil {
			return err
		}
		if err := txn.Set(nameKey, []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), marshalUser(user))
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (u *UserRepository) FindUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	var user User
	err := u.db.View(func(txn *badger.Txn) (err error) {
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (u *UserRepository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailPrefix + normalize(email)))
		if err == badger.ErrKeyNotFound {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, string(id))
		return err
	})
	return user, err
}

// ListUsers returns every account in key order.
func (u *UserRepository) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				user, err := unmarshalUser(val)
				if err != nil {
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
	return users, nil
}

// UpdateUserPresence rewrites the persisted presence fields.
// LastSeen is only touched on the transition to offline.
func (u *UserRepository) UpdateUserPresence(ctx context.Context, id string, presence domain.Presence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		user, err := getUser(txn, id)
		if err != nil {
			return err
		}
		user.IsOnline = presence.Online
		if !presence.Online && presence.LastSeen != nil {
			user.LastSeen = presence.LastSeen
		}
		return txn.Set(userKey(id), marshalUser(user))
	})
}

func getUser(txn *badger.Txn, id string) (User, error) {
	item, err := txn.Get(userKey(id))
	if err == badger.ErrKeyNotFound {
		return User{}, fmt.Errorf("%w: %s", errors.ErrUserNotFound, id)
	}
	if err != nil {
		return User{}, err
	}
	var user User
	err = item.Value(func(val []byte) error {
		user, err = unmarshalUser(val)
		return err
	})
	return user, err
}

func userKey(id string) []byte {
	return []byte(userPrefix + id)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
