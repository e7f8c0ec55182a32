package websocket

import (
	"chat-dm/domain"
	"chat-dm/domain/event"
	"chat-dm/errors"
	"chat-dm/mocks"
	"chat-dm/runtime"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var alice = domain.User{ID: "alice-id", Username: "alice"}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *mocks.MockIAuthenticator) {
	ctrl := gomock.NewController(t)
	authenticator := mocks.NewMockIAuthenticator(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)
	users.EXPECT().UpdateUserPresence(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	messages := mocks.NewMockIMessageRepository(ctrl)

	log := slog.New(slog.DiscardHandler)
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(registry, log, time.Second)
	router := runtime.NewRouter(users, messages, broadcaster, log, time.Second, 4000)
	sessions := runtime.NewSessionManager(authenticator, registry, broadcaster, router, users, log, time.Second)

	server := NewServer(sessions, log, []string{"http://allowed.example"}, 8, time.Second)
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	t.Cleanup(func() {
		server.CloseAll()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Wait(ctx)
	})
	return server, httpServer, authenticator
}

func wsURL(httpServer *httptest.Server) string {
	return "ws" + strings.TrimPrefix(httpServer.URL, "http")
}

func TestServer_RefusesInvalidToken(t *testing.T) {
	req := require.New(t)

	// Given
	_, httpServer, authenticator := newTestServer(t)
	authenticator.EXPECT().Authenticate(gomock.Any(), "bad").
		Return(domain.User{}, fmt.Errorf("%w: malformed", errors.ErrAuthentication))

	// When
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(httpServer)+"?token=bad", nil)

	// Then
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	var body map[string]string
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal("Not authorized, token failed", body["message"])
}

func TestServer_ReportsInvalidFrameAndKeepsConnection(t *testing.T) {
	req := require.New(t)

	// Given
	_, httpServer, authenticator := newTestServer(t)
	authenticator.EXPECT().Authenticate(gomock.Any(), "good").Return(alice, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(httpServer),
		http.Header{"Authorization": []string{"Bearer good"}})
	req.NoError(err)
	defer conn.Close()

	// When
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-room"}`)))
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	// Then
	for range 2 {
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		_, data, err := conn.ReadMessage()
		req.NoError(err)
		var envelope event.Envelope
		req.NoError(json.Unmarshal(data, &envelope))
		req.Equal(event.ErrorName, envelope.Event)
	}
}

func TestServer_CloseAllSendsGoingAway(t *testing.T) {
	req := require.New(t)

	// Given
	server, httpServer, authenticator := newTestServer(t)
	authenticator.EXPECT().Authenticate(gomock.Any(), "good").Return(alice, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(httpServer)+"?token=good", nil)
	req.NoError(err)
	defer conn.Close()
	req.Eventually(func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return len(server.live) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// When
	server.CloseAll()

	// Then
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(server.Wait(ctx))
}

func TestTokenFromRequest(t *testing.T) {
	req := require.New(t)

	withHeader := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	withHeader.Header.Set("Authorization", "Bearer header")
	req.Equal("header", TokenFromRequest(withHeader))

	req.Equal("query", TokenFromRequest(httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)))
	req.Empty(TokenFromRequest(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}

func TestCheckOrigin(t *testing.T) {
	req := require.New(t)
	check := checkOrigin([]string{"http://allowed.example"})

	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	req.True(check(request("")))
	req.True(check(request("http://allowed.example")))
	req.False(check(request("http://evil.example")))
	req.True(checkOrigin([]string{"*"})(request("http://evil.example")))
}
