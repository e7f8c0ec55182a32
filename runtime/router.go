package runtime

import (
	"chat-dm/contract"
	"chat-dm/domain"
	"chat-dm/domain/event"
	"chat-dm/errors"
	"chat-dm/observability"
	"chat-dm/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Router persists a message and then delivers it.
// Nothing is pushed to any connection before the write is durable.
type Router struct {
	users              repositories.IUserRepository
	messages           repositories.IMessageRepository
	broadcaster        *Broadcaster
	log                *slog.Logger
	persistenceTimeout time.Duration
	maxContentLength   int
	now                func() time.Time
}

func NewRouter(
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	broadcaster *Broadcaster,
	log *slog.Logger,
	persistenceTimeout time.Duration,
	maxContentLength int,
) *Router {
	return &Router{
		users:              users,
		messages:           messages,
		broadcaster:        broadcaster,
		log:                log,
		persistenceTimeout: persistenceTimeout,
		maxContentLength:   maxContentLength,
		now:                time.Now,
	}
}

// Send validates, persists and delivers a direct message.
// The receiver's whole delivery room gets receive-message, then origin (when
// not nil) gets exactly one message-sent. An offline receiver is not an error:
// the message waits in history.
func (r *Router) Send(ctx context.Context, origin contract.Connection, sender domain.User, cmd domain.SendMessageCommand) (domain.MessageView, error) {
	// Persistence must survive the connection going away mid-send
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistenceTimeout)
	defer cancel()

	content, err := r.validate(persistCtx, sender, cmd)
	if err != nil {
		observability.MessagesRejected.WithLabelValues("invalid").Inc()
		return domain.MessageView{}, err
	}

	start := time.Now()
	message, err := r.messages.CreateMessage(persistCtx, sender.ID, cmd.Receiver, content, r.now())
	observability.PersistenceLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.MessagesRejected.WithLabelValues("persistence").Inc()
		r.log.Error("Message persistence failed", "sender", sender.ID, "receiver", cmd.Receiver, "error", err)
		return domain.MessageView{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	view, err := r.messages.FindMessageByID(persistCtx, message.ID)
	if err != nil {
		// The message is stored, deliver what we already know
		r.log.Warn("Unable to populate message, delivering raw participants", "id", message.ID, "error", err)
		view = message.View(sender, domain.User{ID: cmd.Receiver})
	}

	deliverCtx := context.WithoutCancel(ctx)
	delivered := r.broadcaster.DeliverToUser(deliverCtx, cmd.Receiver, event.ReceiveMessage{Message: view})
	if delivered == 0 {
		observability.MessagesSent.WithLabelValues("offline").Inc()
		r.log.Debug("Receiver unreachable, message kept in history", "id", view.ID, "receiver", cmd.Receiver)
	} else {
		observability.MessagesSent.WithLabelValues("online").Inc()
	}

	if origin != nil {
		r.broadcaster.DeliverTo(deliverCtx, origin, event.MessageSent{Message: view})
	}
	r.log.Debug("Message routed", "id", view.ID, "sender", sender.ID, "receiver", cmd.Receiver, "connections", delivered)
	return view, nil
}

func (r *Router) validate(ctx context.Context, sender domain.User, cmd domain.SendMessageCommand) (string, error) {
	if err := validate.Struct(cmd); err != nil {
		return "", fmt.Errorf("%w: please provide receiver and content", errors.ErrInvalidMessage)
	}
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return "", fmt.Errorf("%w: content is empty", errors.ErrInvalidMessage)
	}
	if r.maxContentLength > 0 && utf8.RuneCountInString(content) > r.maxContentLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", errors.ErrInvalidMessage, r.maxContentLength)
	}
	if cmd.Receiver == sender.ID {
		return "", fmt.Errorf("%w: cannot send a message to yourself", errors.ErrInvalidMessage)
	}
	if _, err := r.users.FindUserByID(ctx, cmd.Receiver); err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return "", fmt.Errorf("%w: receiver not found", errors.ErrInvalidMessage)
		}
		return "", fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return content, nil
}
