package websocket

import (
	"chat-dm/contract"
	"chat-dm/domain"
	"chat-dm/domain/event"
	"chat-dm/errors"
	"chat-dm/runtime"
	"chat-dm/sink"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum frame size allowed from the peer.
	maxMessageSize = 64 * 1024
)

// Server upgrades authenticated requests to websocket connections and pumps
// frames between the peer and its session.
type Server struct {
	sessions        *runtime.SessionManager
	log             *slog.Logger
	upgrader        websocket.Upgrader
	bufferSize      int
	deliveryTimeout time.Duration

	mu      sync.Mutex
	live    map[uuid.UUID]*websocket.Conn
	closing bool
	wg      sync.WaitGroup
}

func NewServer(
	sessions *runtime.SessionManager,
	log *slog.Logger,
	allowedOrigins []string,
	bufferSize int,
	deliveryTimeout time.Duration,
) *Server {
	return &Server{
		sessions:        sessions,
		log:             log,
		bufferSize:      bufferSize,
		deliveryTimeout: deliveryTimeout,
		live:            make(map[uuid.UUID]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// ServeHTTP authenticates before upgrading: a refused token gets a plain 401
// and never becomes a connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		conn *websocket.Conn
		out  *sink.ConnectionSink
	)
	session, err := s.sessions.Connect(r.Context(), TokenFromRequest(r), func(user domain.User) (contract.Connection, error) {
		c, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return nil, err
		}
		conn = c
		out = sink.NewConnectionSink(user.ID, s.bufferSize, s.deliveryTimeout)
		return out, nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrAuthentication) {
			s.log.Debug("Websocket handshake refused", "remote_addr", r.RemoteAddr, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not authorized, token failed"})
			return
		}
		// The upgrader already answered the peer
		s.log.Warn("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	if !s.track(out.ID(), conn) {
		cancel()
		session.Close(ctx)
		out.Close()
		_ = conn.Close()
		return
	}
	defer func() {
		cancel()
		session.Close(ctx)
		out.Close()
		s.untrack(out.ID())
	}()

	go s.writePump(conn, out, cancel)
	s.readPump(ctx, conn, session)
}

// readPump handles inbound frames one at a time: the next frame is not read
// until the current command is fully processed.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, session *runtime.Session) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("Websocket read failed", "user", session.User().ID, "error", err)
			}
			return
		}

		cmd, err := DecodeCommand(data)
		if err != nil {
			s.log.Debug("Invalid inbound frame", "user", session.User().ID, "error", err)
			session.ReportError(ctx, err)
			continue
		}
		if err := session.Dispatch(ctx, cmd); err != nil {
			s.log.Debug("Command failed", "user", session.User().ID, "command", cmd.CommandName(), "error", err)
			if errors.Is(err, errors.ErrSessionClosed) {
				return
			}
		}
	}
}

// writePump is the only writer of the connection.
func (s *Server) writePump(conn *websocket.Conn, out *sink.ConnectionSink, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = conn.Close()
	}()

	for {
		select {
		case e := <-out.Events():
			frame, err := event.Encode(e)
			if err != nil {
				s.log.Error("Unable to encode event", "event", e.Name(), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("Websocket write failed", "user", out.UserID(), "error", err)
				return
			}
		case <-out.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// CloseAll sends a going-away close frame to every live connection.
// Read pumps then fail and each session closes normally.
// New handshakes are closed right after authentication from then on.
func (s *Server) CloseAll() {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.live))
	for _, conn := range s.live {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), deadline)
		_ = conn.Close()
	}
}

// Wait blocks until every tracked connection is closed or ctx is done.
// It is meant to be called after CloseAll.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) track(id uuid.UUID, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.live[id] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, id)
	s.wg.Done()
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by browsers.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no origin
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}
