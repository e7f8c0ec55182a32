package runtime

import (
	"chat-dm/contract"
	"chat-dm/domain"
	"chat-dm/domain/event"
	"chat-dm/errors"
	"chat-dm/observability"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Broadcaster fans events out to live connections.
// A failed delivery to one connection never affects the others.
type Broadcaster struct {
	registry        contract.IRegistry
	log             *slog.Logger
	deliveryTimeout time.Duration
}

func NewBroadcaster(registry contract.IRegistry, log *slog.Logger, deliveryTimeout time.Duration) *Broadcaster {
	return &Broadcaster{registry: registry, log: log, deliveryTimeout: deliveryTimeout}
}

// AnnounceOnline tells every other user's connections that userID came online.
func (b *Broadcaster) AnnounceOnline(ctx context.Context, userID string) int {
	return b.deliver(ctx, b.registry.ConnectionsExcept(userID), event.UserOnline{UserID: userID})
}

// AnnounceOffline tells every other user's connections that userID went offline.
func (b *Broadcaster) AnnounceOffline(ctx context.Context, userID string) int {
	return b.deliver(ctx, b.registry.ConnectionsExcept(userID), event.UserOffline{UserID: userID})
}

// RelayTyping forwards a typing signal to the receiver's delivery room only.
// Nothing is stored and an offline receiver simply drops it.
func (b *Broadcaster) RelayTyping(ctx context.Context, sender domain.User, signal domain.TypingSignal) int {
	return b.DeliverToUser(ctx, signal.ReceiverID, event.UserTyping{
		Sender:   sender.ID,
		Username: sender.Username,
		IsTyping: signal.IsTyping,
	})
}

// DeliverToUser pushes an event to every connection of a user's delivery room
// and returns how many accepted it. Zero means the user is unreachable.
func (b *Broadcaster) DeliverToUser(ctx context.Context, userID string, e event.Event) int {
	return b.deliver(ctx, b.registry.ConnectionsOf(userID), e)
}

// DeliverTo pushes an event to a single connection.
func (b *Broadcaster) DeliverTo(ctx context.Context, conn contract.Connection, e event.Event) bool {
	return b.deliver(ctx, []contract.Connection{conn}, e) == 1
}

func (b *Broadcaster) deliver(ctx context.Context, conns []contract.Connection, e event.Event) int {
	if len(conns) == 0 {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, conn := range conns {
		wg.Add(1)
		go func(conn contract.Connection) {
			defer wg.Done()
			deliveryCtx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
			defer cancel()

			if err := conn.Consume(deliveryCtx, e); err != nil {
				observability.DeliveryFailures.WithLabelValues(string(e.Name())).Inc()
				if errors.Is(err, errors.ErrConnectionClosed) {
					b.log.Debug("Connection closed before delivery", "event", e.Name(), "connection", conn.ID())
					return
				}
				attrs := []any{"event", e.Name(), "user", conn.UserID(), "connection", conn.ID(), "error", err}
				if id, ok := event.MessageID(e); ok {
					attrs = append(attrs, "message_id", id)
				}
				b.log.Warn("Delivery failed", attrs...)
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(conn)
	}
	wg.Wait()
	return delivered
}
