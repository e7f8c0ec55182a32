//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-dm/domain"
	"chat-dm/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix      = "msg:"
	messageIndexPrefix = "msgid:"
)

type IMessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID, content string, at time.Time) (domain.Message, error)
	FindMessageByID(ctx context.Context, id uuid.UUID) (domain.MessageView, error)
	GetConversation(ctx context.Context, userA, userB string) ([]domain.MessageView, error)
	MarkAsRead(ctx context.Context, id uuid.UUID, readerID string, at time.Time) (domain.MessageView, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) IMessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// CreateMessage persists a message in BadgerDB.
// The key is formatted as "msg:{pair}:{timestamp_padded}:{uuid}" where pair is
// the two participant ids in lexical order, so that both directions of a
// conversation share one prefix and scan in chronological order.
// A secondary "msgid:{uuid}" entry points at the primary key.
func (m *MessageRepository) CreateMessage(ctx context.Context, senderID, receiverID, content string, at time.Time) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  at.UTC(),
	}
	key := messageKey(message)
	err := m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, marshalMessage(message)); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(message.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// FindMessageByID loads a message and resolves both participants' usernames.
func (m *MessageRepository) FindMessageByID(ctx context.Context, id uuid.UUID) (domain.MessageView, error) {
	if err := ctx.Err(); err != nil {
		return domain.MessageView{}, err
	}
	var view domain.MessageView
	err := m.db.View(func(txn *badger.Txn) error {
		message, _, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		view = populate(txn, message)
		return nil
	})
	return view, err
}

// GetConversation returns the messages exchanged between two users in both
// directions, oldest first. When limitMessages is set only the most recent
// ones are returned.
func (m *MessageRepository) GetConversation(ctx context.Context, userA, userB string) ([]domain.MessageView, error) {
	var views []domain.MessageView
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix + pairKey(userA, userB) + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Start from the newest entry and walk back
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if m.limitMessages != nil && len(views) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			var message domain.Message
			err := it.Item().Value(func(val []byte) (err error) {
				message, err = unmarshalMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			views = append(views, populate(txn, message))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(views)
	return views, nil
}

// MarkAsRead flags a message as read on behalf of its receiver.
// ReadAt is set at most once: marking an already read message is a no-op.
func (m *MessageRepository) MarkAsRead(ctx context.Context, id uuid.UUID, readerID string, at time.Time) (domain.MessageView, error) {
	if err := ctx.Err(); err != nil {
		return domain.MessageView{}, err
	}
	var view domain.MessageView
	err := m.db.Update(func(txn *badger.Txn) error {
		message, key, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		if message.ReceiverID != readerID {
			return errors.ErrNotAuthorized
		}
		if !message.IsRead {
			readAt := at.UTC()
			message.IsRead = true
			message.ReadAt = &readAt
			if err := txn.Set(key, marshalMessage(message)); err != nil {
				return err
			}
		}
		view = populate(txn, message)
		return nil
	})
	return view, err
}

func getMessage(txn *badger.Txn, id uuid.UUID) (domain.Message, []byte, error) {
	item, err := txn.Get(messageIndexKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, nil, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return domain.Message{}, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, nil, err
	}
	item, err = txn.Get(key)
	if err != nil {
		return domain.Message{}, nil, err
	}
	var message domain.Message
	err = item.Value(func(val []byte) (err error) {
		message, err = unmarshalMessage(val)
		return err
	})
	return message, key, err
}

// populate denormalizes the participants of a message.
// A participant that cannot be resolved keeps its id with an empty username.
func populate(txn *badger.Txn, message domain.Message) domain.MessageView {
	resolve := func(id string) domain.User {
		user, err := getUser(txn, id)
		if err != nil {
			return domain.User{ID: id}
		}
		return user.Identity()
	}
	return message.View(resolve(message.SenderID), resolve(message.ReceiverID))
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		messagePrefix,
		pairKey(message.SenderID, message.ReceiverID),
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte(messageIndexPrefix + id.String())
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
