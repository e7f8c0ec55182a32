package runtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chat-dm/contract"
	"chat-dm/domain"
	"chat-dm/domain/event"
	"chat-dm/errors"
	"chat-dm/mocks"
	"chat-dm/repositories"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sessionFixture struct {
	authenticator *mocks.MockIAuthenticator
	users         *mocks.MockIUserRepository
	messages      *mocks.MockIMessageRepository
	registry      *Registry
	manager       *SessionManager
}

func newSessionFixture(t *testing.T) sessionFixture {
	ctrl := gomock.NewController(t)
	authenticator := mocks.NewMockIAuthenticator(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)
	messages := mocks.NewMockIMessageRepository(ctrl)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, discardLogger(), time.Second)
	router := NewRouter(users, messages, broadcaster, discardLogger(), time.Second, 100)
	return sessionFixture{
		authenticator: authenticator,
		users:         users,
		messages:      messages,
		registry:      registry,
		manager:       NewSessionManager(authenticator, registry, broadcaster, router, users, discardLogger(), time.Second),
	}
}

// connect registers a connection for user, expecting a valid token
func (f sessionFixture) connect(t *testing.T, user domain.User) (*Session, *connection) {
	t.Helper()
	token := "token-" + user.ID
	f.authenticator.EXPECT().Authenticate(gomock.Any(), token).Return(user, nil)
	conn := newConnection(user.ID)
	session, err := f.manager.Connect(context.Background(), token, func(domain.User) (contract.Connection, error) {
		return conn, nil
	})
	require.NoError(t, err)
	return session, conn
}

func TestSession_Connect_Announces_First_Connection_Only(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	alice := domain.User{ID: "alice", Username: "alice"}
	bob := domain.User{ID: "bob", Username: "bob"}

	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "bob", domain.Online()).Return(nil).Times(1)
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "alice", domain.Online()).Return(nil).Times(1)

	// Given bob is connected
	_, bobConn := f.connect(t, bob)

	// When alice connects twice
	first, _ := f.connect(t, alice)
	second, _ := f.connect(t, alice)

	// Then bob hears about alice once
	req.Equal([]event.Event{event.UserOnline{UserID: "alice"}}, bobConn.Events())
	req.Equal(StateActive, first.State())
	req.Equal(StateActive, second.State())
	req.Len(f.registry.ConnectionsOf("alice"), 2)
}

func TestSession_Close_Announces_Last_Connection_Only(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	alice := domain.User{ID: "alice", Username: "alice"}

	f.users.EXPECT().UpdateUserPresence(gomock.Any(), gomock.Any(), domain.Online()).Return(nil).Times(2)
	_, bobConn := f.connect(t, domain.User{ID: "bob"})
	first, _ := f.connect(t, alice)
	second, _ := f.connect(t, alice)

	// When one of alice's connections closes nothing is announced
	first.Close(context.Background())
	req.Equal([]event.Name{event.UserOnlineName}, bobConn.Names())
	req.True(f.registry.IsOnline("alice"))

	// When the last one closes she goes offline with a last seen timestamp
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "alice", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, presence domain.Presence) error {
			req.False(presence.Online)
			req.NotNil(presence.LastSeen)
			return nil
		}).Times(1)
	second.Close(context.Background())
	second.Close(context.Background())

	req.Equal([]event.Name{event.UserOnlineName, event.UserOfflineName}, bobConn.Names())
	req.False(f.registry.IsOnline("alice"))
	req.Equal(StateClosed, second.State())
}

func TestSession_Connect_Refuses_Invalid_Token(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)

	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "bob", gomock.Any()).Return(nil)
	_, bobConn := f.connect(t, domain.User{ID: "bob"})

	f.authenticator.EXPECT().Authenticate(gomock.Any(), "expired").
		Return(domain.User{}, fmt.Errorf("%w: token is expired", errors.ErrAuthentication))
	attached := false
	session, err := f.manager.Connect(context.Background(), "expired", func(domain.User) (contract.Connection, error) {
		attached = true
		return nil, nil
	})

	req.ErrorIs(err, errors.ErrAuthentication)
	req.Nil(session)
	req.False(attached)
	req.Equal([]string{"bob"}, f.registry.OnlineUsers())
	req.Empty(bobConn.Events())
}

func TestSession_Presence_Write_Failure_Is_Swallowed(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)

	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "alice", gomock.Any()).Return(fmt.Errorf("disk full")).Times(2)
	session, _ := f.connect(t, domain.User{ID: "alice"})
	req.True(f.registry.IsOnline("alice"))

	session.Close(context.Background())
	req.False(f.registry.IsOnline("alice"))
}

func TestSession_Dispatch_Empty_Message_Reports_Error_To_Origin_Only(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	_, bobConn := f.connect(t, domain.User{ID: "bob"})
	session, aliceConn := f.connect(t, domain.User{ID: "alice"})
	_, aliceOther := f.connect(t, domain.User{ID: "alice"})
	f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := session.Dispatch(context.Background(), domain.SendMessageCommand{Receiver: "bob", Content: "   "})

	req.ErrorIs(err, errors.ErrInvalidMessage)
	req.Equal([]event.Name{event.ErrorName}, aliceConn.Names())
	req.Empty(aliceOther.Events())
	req.Equal([]event.Name{event.UserOnlineName}, bobConn.Names())
}

func TestSession_Dispatch_Typing(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	session, aliceConn := f.connect(t, domain.User{ID: "alice", Username: "Alice"})
	_, bobConn := f.connect(t, domain.User{ID: "bob"})
	_, carolConn := f.connect(t, domain.User{ID: "carol"})

	req.NoError(session.Dispatch(context.Background(), domain.TypingCommand{Receiver: "bob", IsTyping: true}))

	req.Equal(event.UserTyping{Sender: "alice", Username: "Alice", IsTyping: true}, bobConn.Events()[len(bobConn.Events())-1])
	req.NotContains(carolConn.Names(), event.UserTypingName)
	req.NotContains(aliceConn.Names(), event.UserTypingName)

	// Typing to an offline user is dropped silently
	req.NoError(session.Dispatch(context.Background(), domain.TypingCommand{Receiver: "dave", IsTyping: true}))

	// A typing signal without receiver is an invalid event
	err := session.Dispatch(context.Background(), domain.TypingCommand{IsTyping: true})
	req.ErrorIs(err, errors.ErrInvalidEvent)
	req.Equal(event.ErrorName, aliceConn.Names()[len(aliceConn.Names())-1])
}

func TestSession_Dispatch_After_Close(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	session, _ := f.connect(t, domain.User{ID: "alice"})
	session.Close(context.Background())

	err := session.Dispatch(context.Background(), domain.SendMessageCommand{Receiver: "bob", Content: "hi"})
	req.ErrorIs(err, errors.ErrSessionClosed)
}

func TestSessionManager_Logout(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "alice", domain.Online()).Return(nil)
	session, _ := f.connect(t, domain.User{ID: "alice"})

	// With a live connection the stored presence is left alone
	changed, err := f.manager.Logout(context.Background(), "alice")
	req.NoError(err)
	req.False(changed)

	// Without one it is written offline
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "alice", gomock.Any()).Return(nil).Times(2)
	session.Close(context.Background())
	changed, err = f.manager.Logout(context.Background(), "alice")
	req.NoError(err)
	req.True(changed)
}

func TestSessionManager_Reconcile(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "live", domain.Online()).Return(fmt.Errorf("disk full"))
	f.connect(t, domain.User{ID: "live"})

	stale := repositories.User{ID: "stale", IsOnline: true}
	live := repositories.User{ID: "live", IsOnline: false}
	offline := repositories.User{ID: "offline", IsOnline: false}
	f.users.EXPECT().ListUsers(gomock.Any()).Return([]repositories.User{stale, live, offline}, nil)
	f.users.EXPECT().FindUserByID(gomock.Any(), "stale").Return(stale, nil)
	f.users.EXPECT().FindUserByID(gomock.Any(), "live").Return(live, nil)

	// The stale user is written offline, the live one online
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "stale", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, presence domain.Presence) error {
			req.False(presence.Online)
			req.NotNil(presence.LastSeen)
			return nil
		})
	f.users.EXPECT().UpdateUserPresence(gomock.Any(), "live", domain.Online()).Return(nil)

	repaired, err := f.manager.Reconcile(context.Background())

	req.NoError(err)
	req.Equal(2, repaired)
}
