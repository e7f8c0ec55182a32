package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a direct message between exactly two distinct users.
// Content is immutable once created; only the read flag changes, by the receiver.
type Message struct {
	ID         uuid.UUID
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
	IsRead     bool
	ReadAt     *time.Time
}

// MessageView is the fully resolved message pushed to connections and returned by the API.
type MessageView struct {
	ID        uuid.UUID   `json:"_id"`
	Sender    Participant `json:"sender"`
	Receiver  Participant `json:"receiver"`
	Content   string      `json:"content"`
	IsRead    bool        `json:"isRead"`
	ReadAt    *time.Time  `json:"readAt,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// View resolves a message with the given sender and receiver identities.
func (m Message) View(sender, receiver User) MessageView {
	return MessageView{
		ID:        m.ID,
		Sender:    sender.Participant(),
		Receiver:  receiver.Participant(),
		Content:   m.Content,
		IsRead:    m.IsRead,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}

// Involves reports whether the user is the sender or the receiver of the message.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}
