package runtime

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"chat-dm/domain"
	"chat-dm/domain/event"
	"chat-dm/errors"
	"chat-dm/mocks"
	"chat-dm/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	users    *mocks.MockIUserRepository
	messages *mocks.MockIMessageRepository
	registry *Registry
	router   *Router
}

func newRouterFixture(t *testing.T) routerFixture {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	messages := mocks.NewMockIMessageRepository(ctrl)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, discardLogger(), time.Second)
	return routerFixture{
		users:    users,
		messages: messages,
		registry: registry,
		router:   NewRouter(users, messages, broadcaster, discardLogger(), time.Second, 20),
	}
}

func storedView(id uuid.UUID, content string) domain.MessageView {
	return domain.MessageView{
		ID:        id,
		Sender:    domain.Participant{ID: "alice", Username: "alice"},
		Receiver:  domain.Participant{ID: "bob", Username: "bob"},
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

func TestRouter_Send_Persists_Before_Delivering(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	alice := domain.User{ID: "alice", Username: "alice"}
	origin := newConnection("alice")
	aliceOther := newConnection("alice")
	bob1, bob2 := newConnection("bob"), newConnection("bob")
	for _, conn := range []*connection{origin, aliceOther, bob1, bob2} {
		f.registry.Register(conn)
	}
	id := uuid.New()

	gomock.InOrder(
		f.users.EXPECT().FindUserByID(gomock.Any(), "bob").
			Return(repositories.User{ID: "bob", Username: "bob"}, nil),
		f.messages.EXPECT().CreateMessage(gomock.Any(), "alice", "bob", "hello", gomock.Any()).
			DoAndReturn(func(ctx context.Context, senderID, receiverID, content string, at time.Time) (domain.Message, error) {
				// Nothing may reach any connection before the write
				req.Empty(bob1.Events())
				req.Empty(bob2.Events())
				req.Empty(origin.Events())
				return domain.Message{ID: id, SenderID: senderID, ReceiverID: receiverID, Content: content, CreatedAt: at}, nil
			}),
		f.messages.EXPECT().FindMessageByID(gomock.Any(), id).
			Return(storedView(id, "hello"), nil),
	)

	// When alice sends "  hello  " to bob
	view, err := f.router.Send(context.Background(), origin, alice, domain.SendMessageCommand{Receiver: "bob", Content: "  hello  "})

	// Then both of bob's connections get the same message
	req.NoError(err)
	req.Equal(id, view.ID)
	for _, conn := range []*connection{bob1, bob2} {
		req.Equal([]event.Name{event.ReceiveMessageName}, conn.Names())
		messageID, ok := event.MessageID(conn.Events()[0])
		req.True(ok)
		req.Equal(id.String(), messageID)
	}
	// And only the origin connection gets one ack
	req.Equal([]event.Name{event.MessageSentName}, origin.Names())
	req.Empty(aliceOther.Events())
}

func TestRouter_Send_To_Offline_Receiver(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	origin := newConnection("alice")
	f.registry.Register(origin)
	id := uuid.New()

	f.users.EXPECT().FindUserByID(gomock.Any(), "bob").Return(repositories.User{ID: "bob"}, nil)
	f.messages.EXPECT().CreateMessage(gomock.Any(), "alice", "bob", "hi", gomock.Any()).
		Return(domain.Message{ID: id}, nil)
	f.messages.EXPECT().FindMessageByID(gomock.Any(), id).Return(storedView(id, "hi"), nil)

	view, err := f.router.Send(context.Background(), origin, domain.User{ID: "alice"}, domain.SendMessageCommand{Receiver: "bob", Content: "hi"})

	req.NoError(err)
	req.False(view.IsRead)
	req.Equal([]event.Name{event.MessageSentName}, origin.Names())
}

func TestRouter_Send_Rejects_Invalid_Messages(t *testing.T) {
	tests := []struct {
		name    string
		cmd     domain.SendMessageCommand
		lookup  bool
		missing bool
	}{
		{name: "empty content", cmd: domain.SendMessageCommand{Receiver: "bob", Content: ""}},
		{name: "blank content", cmd: domain.SendMessageCommand{Receiver: "bob", Content: "   \n\t"}},
		{name: "missing receiver", cmd: domain.SendMessageCommand{Content: "hi"}},
		{name: "content too long", cmd: domain.SendMessageCommand{Receiver: "bob", Content: strings.Repeat("x", 21)}},
		{name: "message to self", cmd: domain.SendMessageCommand{Receiver: "alice", Content: "hi"}},
		{name: "unknown receiver", cmd: domain.SendMessageCommand{Receiver: "bob", Content: "hi"}, lookup: true, missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newRouterFixture(t)
			origin := newConnection("alice")
			bob := newConnection("bob")
			f.registry.Register(origin)
			f.registry.Register(bob)

			if tt.lookup {
				f.users.EXPECT().FindUserByID(gomock.Any(), tt.cmd.Receiver).
					Return(repositories.User{}, fmt.Errorf("%w: %s", errors.ErrUserNotFound, tt.cmd.Receiver))
			}
			f.messages.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			_, err := f.router.Send(context.Background(), origin, domain.User{ID: "alice"}, tt.cmd)

			req.ErrorIs(err, errors.ErrInvalidMessage)
			req.Empty(origin.Events())
			req.Empty(bob.Events())
		})
	}
}

func TestRouter_Send_Persistence_Failure_Delivers_Nothing(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	origin := newConnection("alice")
	bob := newConnection("bob")
	f.registry.Register(origin)
	f.registry.Register(bob)

	f.users.EXPECT().FindUserByID(gomock.Any(), "bob").Return(repositories.User{ID: "bob"}, nil)
	f.messages.EXPECT().CreateMessage(gomock.Any(), "alice", "bob", "hi", gomock.Any()).
		Return(domain.Message{}, fmt.Errorf("disk full"))
	f.messages.EXPECT().FindMessageByID(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.router.Send(context.Background(), origin, domain.User{ID: "alice"}, domain.SendMessageCommand{Receiver: "bob", Content: "hi"})

	req.ErrorIs(err, errors.ErrPersistence)
	req.Empty(bob.Events())
	req.Empty(origin.Events())
}

func TestRouter_Send_Survives_Canceled_Connection_Context(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	bob := newConnection("bob")
	f.registry.Register(bob)
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.users.EXPECT().FindUserByID(gomock.Any(), "bob").Return(repositories.User{ID: "bob"}, nil)
	f.messages.EXPECT().CreateMessage(gomock.Any(), "alice", "bob", "hi", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _, _ string, _ time.Time) (domain.Message, error) {
			req.NoError(ctx.Err())
			return domain.Message{ID: id}, nil
		})
	f.messages.EXPECT().FindMessageByID(gomock.Any(), id).Return(storedView(id, "hi"), nil)

	// A REST send has no origin connection
	_, err := f.router.Send(ctx, nil, domain.User{ID: "alice"}, domain.SendMessageCommand{Receiver: "bob", Content: "hi"})

	req.NoError(err)
	req.Equal([]event.Name{event.ReceiveMessageName}, bob.Names())
}

func TestRouter_Send_Falls_Back_When_Populate_Fails(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	bob := newConnection("bob")
	f.registry.Register(bob)
	id := uuid.New()

	f.users.EXPECT().FindUserByID(gomock.Any(), "bob").Return(repositories.User{ID: "bob"}, nil)
	f.messages.EXPECT().CreateMessage(gomock.Any(), "alice", "bob", "hi", gomock.Any()).
		Return(domain.Message{ID: id, SenderID: "alice", ReceiverID: "bob", Content: "hi"}, nil)
	f.messages.EXPECT().FindMessageByID(gomock.Any(), id).Return(domain.MessageView{}, fmt.Errorf("boom"))

	view, err := f.router.Send(context.Background(), nil, domain.User{ID: "alice", Username: "alice"}, domain.SendMessageCommand{Receiver: "bob", Content: "hi"})

	req.NoError(err)
	req.Equal(id, view.ID)
	req.Equal("alice", view.Sender.Username)
	req.Equal("bob", view.Receiver.ID)
	req.Len(bob.Events(), 1)
}
