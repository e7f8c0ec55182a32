//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-dm/domain"
	"chat-dm/domain/event"
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Connection is one live transport session owned by exactly one user.
type Connection interface {
	EventSink
	ID() uuid.UUID
	UserID() string
	CreatedAt() time.Time
}

// IRegistry is the read side of the presence registry.
// Only the session lifecycle writes to it.
type IRegistry interface {
	IsOnline(userID string) bool
	ConnectionsOf(userID string) []Connection
	ConnectionsExcept(userID string) []Connection
	OnlineUsers() []string
}

type IAuthenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}
