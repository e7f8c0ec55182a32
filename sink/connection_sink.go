package sink

import (
	"chat-dm/domain/event"
	"chat-dm/errors"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnectionSink is the outbound side of one live connection.
// Events are queued in a bounded buffer drained by the transport write loop.
// Once closed, Consume fails with ErrConnectionClosed.
type ConnectionSink struct {
	id              uuid.UUID
	userID          string
	createdAt       time.Time
	events          chan event.Event
	done            chan struct{}
	once            sync.Once
	deliveryTimeout time.Duration
}

func NewConnectionSink(userID string, bufferSize int, deliveryTimeout time.Duration) *ConnectionSink {
	return &ConnectionSink{
		id:              uuid.New(),
		userID:          userID,
		createdAt:       time.Now().UTC(),
		events:          make(chan event.Event, bufferSize),
		done:            make(chan struct{}),
		deliveryTimeout: deliveryTimeout,
	}
}

func (s *ConnectionSink) ID() uuid.UUID        { return s.id }
func (s *ConnectionSink) UserID() string       { return s.userID }
func (s *ConnectionSink) CreatedAt() time.Time { return s.createdAt }

// Consume queues an event for the connection.
// It waits at most deliveryTimeout for room in the buffer, so a stuck
// reader never blocks the sender.
func (s *ConnectionSink) Consume(ctx context.Context, e event.Event) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(s.deliveryTimeout)
	defer timer.Stop()

	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.ErrDeliveryTimeout
	}
}

// Events is drained by the write loop.
func (s *ConnectionSink) Events() <-chan event.Event {
	return s.events
}

// Done is closed once the sink is closed.
func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent. Queued events are dropped.
func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}
