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
	"sync"
	"time"
)

type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateJoined
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Attach binds the transport once the identity is known.
// It is only called after a successful authentication.
type Attach func(user domain.User) (contract.Connection, error)

// SessionManager drives the lifecycle of every connection and keeps the
// registry, the persisted presence and the announcements consistent.
// Presence transitions of one user are serialized so that announcements
// leave in the same order as registry changes.
type SessionManager struct {
	authenticator   contract.IAuthenticator
	registry        *Registry
	broadcaster     *Broadcaster
	router          *Router
	users           repositories.IUserRepository
	log             *slog.Logger
	presenceTimeout time.Duration
	locks           *userLocks
	now             func() time.Time
}

func NewSessionManager(
	authenticator contract.IAuthenticator,
	registry *Registry,
	broadcaster *Broadcaster,
	router *Router,
	users repositories.IUserRepository,
	log *slog.Logger,
	presenceTimeout time.Duration,
) *SessionManager {
	return &SessionManager{
		authenticator:   authenticator,
		registry:        registry,
		broadcaster:     broadcaster,
		router:          router,
		users:           users,
		log:             log,
		presenceTimeout: presenceTimeout,
		locks:           newUserLocks(),
		now:             time.Now,
	}
}

// Connect authenticates a token, attaches the transport and registers the
// connection. The first connection of a user marks it online and is announced
// to everybody else. A failed authentication leaves the registry untouched.
func (m *SessionManager) Connect(ctx context.Context, token string, attach Attach) (*Session, error) {
	session := &Session{manager: m, state: StateConnecting}

	user, err := m.authenticator.Authenticate(ctx, token)
	if err != nil {
		observability.RejectedHandshakes.Inc()
		return nil, err
	}
	session.user = user
	session.state = StateAuthenticated

	conn, err := attach(user)
	if err != nil {
		return nil, err
	}
	session.conn = conn

	unlock := m.locks.Lock(user.ID)
	defer unlock()

	first := m.registry.Register(conn)
	session.setState(StateJoined)
	if first {
		m.persistPresence(ctx, user.ID, domain.Online())
		m.broadcaster.AnnounceOnline(context.WithoutCancel(ctx), user.ID)
	}
	session.setState(StateActive)
	m.updateGauges()

	m.log.Info("User connected", "user", user.ID, "username", user.Username, "connection", conn.ID(), "first", first)
	return session, nil
}

// Logout persists the user offline unless a connection is still live.
// It reports whether the persisted presence changed.
func (m *SessionManager) Logout(ctx context.Context, userID string) (bool, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if m.registry.IsOnline(userID) {
		m.log.Debug("Logout with live connections, presence unchanged", "user", userID)
		return false, nil
	}
	if err := m.users.UpdateUserPresence(ctx, userID, domain.OfflineSince(m.now().UTC())); err != nil {
		return false, err
	}
	return true, nil
}

// Reconcile rewrites the persisted presence of users whose stored state
// disagrees with the registry, such as users left online by a crash.
// It returns the number of users rewritten.
func (m *SessionManager) Reconcile(ctx context.Context) (int, error) {
	users, err := m.users.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		if user.IsOnline == m.registry.IsOnline(user.ID) {
			continue
		}
		changed, err := m.reconcileUser(ctx, user.ID)
		if err != nil {
			m.log.Warn("Unable to reconcile presence", "user", user.ID, "error", err)
			continue
		}
		if changed {
			repaired++
		}
	}
	return repaired, nil
}

func (m *SessionManager) reconcileUser(ctx context.Context, userID string) (bool, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	// Read again under the lock, a session may have moved in between
	stored, err := m.users.FindUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	live := m.registry.IsOnline(userID)
	if stored.IsOnline == live {
		return false, nil
	}
	presence := domain.Online()
	if !live {
		presence = domain.OfflineSince(m.now().UTC())
	}
	if err := m.users.UpdateUserPresence(ctx, userID, presence); err != nil {
		return false, err
	}
	m.log.Info("Presence reconciled", "user", userID, "online", live)
	return true, nil
}

// persistPresence is best effort: failures are logged and swallowed.
func (m *SessionManager) persistPresence(ctx context.Context, userID string, presence domain.Presence) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.presenceTimeout)
	defer cancel()
	if err := m.users.UpdateUserPresence(ctx, userID, presence); err != nil {
		observability.PresenceWriteFailures.Inc()
		m.log.Warn("Unable to persist presence", "user", userID, "online", presence.Online, "error", err)
	}
}

func (m *SessionManager) updateGauges() {
	observability.ActiveConnections.Set(float64(m.registry.ConnectionCount()))
	observability.OnlineUsers.Set(float64(len(m.registry.OnlineUsers())))
}

// Session is one authenticated connection of a user.
type Session struct {
	manager *SessionManager
	user    domain.User
	conn    contract.Connection
	mu      sync.Mutex
	state   SessionState
}

func (s *Session) User() domain.User               { return s.user }
func (s *Session) Connection() contract.Connection { return s.conn }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Dispatch handles one inbound command to completion.
// Failures are reported to this connection only, as an error event.
func (s *Session) Dispatch(ctx context.Context, cmd domain.Command) error {
	if s.State() != StateActive {
		return errors.ErrSessionClosed
	}

	switch c := cmd.(type) {
	case domain.SendMessageCommand:
		_, err := s.manager.router.Send(ctx, s.conn, s.user, c)
		if err != nil {
			s.reportError(ctx, err)
		}
		return err
	case domain.TypingCommand:
		if err := validate.Struct(c); err != nil {
			err = fmt.Errorf("%w: %v", errors.ErrInvalidEvent, err)
			s.reportError(ctx, err)
			return err
		}
		if c.Receiver == s.user.ID {
			return nil
		}
		s.manager.broadcaster.RelayTyping(ctx, s.user, domain.TypingSignal{
			SenderID:   s.user.ID,
			ReceiverID: c.Receiver,
			IsTyping:   c.IsTyping,
		})
		return nil
	default:
		err := fmt.Errorf("%w: %T", errors.ErrInvalidEvent, cmd)
		s.reportError(ctx, err)
		return err
	}
}

// ReportError sends an error event to this connection only.
func (s *Session) ReportError(ctx context.Context, err error) {
	s.reportError(ctx, err)
}

func (s *Session) reportError(ctx context.Context, err error) {
	message := "Failed to send message"
	switch {
	case errors.Is(err, errors.ErrInvalidMessage), errors.Is(err, errors.ErrInvalidEvent):
		message = err.Error()
	}
	s.manager.broadcaster.DeliverTo(context.WithoutCancel(ctx), s.conn, event.Error{Message: message})
}

// Close deregisters the connection. The last connection of a user marks it
// offline with lastSeen and is announced to everybody else.
// Close is idempotent.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	m := s.manager
	unlock := m.locks.Lock(s.user.ID)
	defer unlock()

	last := m.registry.Deregister(s.conn)
	if last {
		m.persistPresence(ctx, s.user.ID, domain.OfflineSince(m.now().UTC()))
		m.broadcaster.AnnounceOffline(context.WithoutCancel(ctx), s.user.ID)
	}
	m.updateGauges()

	m.log.Info("User disconnected", "user", s.user.ID, "connection", s.conn.ID(), "last", last)
}
