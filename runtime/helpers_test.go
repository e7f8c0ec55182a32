package runtime

import (
	"chat-dm/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// connection records every event it is handed
type connection struct {
	id        uuid.UUID
	userID    string
	createdAt time.Time
	err       error

	mu     sync.Mutex
	events []event.Event
}

func newConnection(userID string) *connection {
	return &connection{id: uuid.New(), userID: userID, createdAt: time.Now()}
}

func (c *connection) ID() uuid.UUID        { return c.id }
func (c *connection) UserID() string       { return c.userID }
func (c *connection) CreatedAt() time.Time { return c.createdAt }

func (c *connection) Consume(_ context.Context, e event.Event) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *connection) Events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

func (c *connection) Names() []event.Name {
	return lo.Map(c.Events(), func(e event.Event, _ int) event.Name { return e.Name() })
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
