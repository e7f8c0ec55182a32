package services_test

import (
	"chat-dm/domain"
	"chat-dm/errors"
	"chat-dm/mocks"
	"chat-dm/services"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMessageService_Send_Has_No_Origin(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIMessageRepository(ctrl)
	sender := mocks.NewMockMessageSender(ctrl)
	svc := services.NewMessageService(repo, sender)
	alice := domain.User{ID: "alice", Username: "alice"}
	cmd := domain.SendMessageCommand{Receiver: "bob", Content: "hi"}
	id := uuid.New()

	sender.EXPECT().Send(gomock.Any(), nil, alice, cmd).Return(domain.MessageView{ID: id}, nil)

	view, err := svc.Send(context.Background(), alice, cmd)
	req.NoError(err)
	req.Equal(id, view.ID)
}

func TestMessageService_Conversation_Is_Never_Null(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIMessageRepository(ctrl)
	svc := services.NewMessageService(repo, mocks.NewMockMessageSender(ctrl))

	repo.EXPECT().GetConversation(gomock.Any(), "alice", "bob").Return(nil, nil)

	messages, err := svc.Conversation(context.Background(), "alice", "bob")
	req.NoError(err)
	req.NotNil(messages)
	req.Empty(messages)
}

func TestMessageService_MarkAsRead(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIMessageRepository(ctrl)
	svc := services.NewMessageService(repo, mocks.NewMockMessageSender(ctrl))
	id := uuid.New()

	repo.EXPECT().MarkAsRead(gomock.Any(), id, "alice", gomock.Any()).Return(domain.MessageView{}, errors.ErrNotAuthorized)

	_, err := svc.MarkAsRead(context.Background(), id, "alice")
	req.ErrorIs(err, errors.ErrNotAuthorized)
}
