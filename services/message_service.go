//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"chat-dm/contract"
	"chat-dm/domain"
	"chat-dm/repositories"
	"context"
	"time"

	"github.com/google/uuid"
)

type IMessageService interface {
	Conversation(ctx context.Context, userID, otherID string) ([]domain.MessageView, error)
	Send(ctx context.Context, sender domain.User, cmd domain.SendMessageCommand) (domain.MessageView, error)
	MarkAsRead(ctx context.Context, messageID uuid.UUID, readerID string) (domain.MessageView, error)
}

// MessageSender persists then delivers a message to live connections.
type MessageSender interface {
	Send(ctx context.Context, origin contract.Connection, sender domain.User, cmd domain.SendMessageCommand) (domain.MessageView, error)
}

type MessageService struct {
	messageRepository repositories.IMessageRepository
	sender            MessageSender
	now               func() time.Time
}

func NewMessageService(repo repositories.IMessageRepository, sender MessageSender) IMessageService {
	return &MessageService{messageRepository: repo, sender: sender, now: time.Now}
}

// Conversation returns the history between two users, oldest first.
func (s *MessageService) Conversation(ctx context.Context, userID, otherID string) ([]domain.MessageView, error) {
	messages, err := s.messageRepository.GetConversation(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		return []domain.MessageView{}, nil
	}
	return messages, nil
}

// Send goes through the same path as the websocket. Without an origin
// connection there is no message-sent ack, the HTTP response plays that role.
func (s *MessageService) Send(ctx context.Context, sender domain.User, cmd domain.SendMessageCommand) (domain.MessageView, error) {
	return s.sender.Send(ctx, nil, sender, cmd)
}

func (s *MessageService) MarkAsRead(ctx context.Context, messageID uuid.UUID, readerID string) (domain.MessageView, error) {
	return s.messageRepository.MarkAsRead(ctx, messageID, readerID, s.now())
}
