package repositories

import (
	"chat-dm/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	req := require.New(t)

	// Given
	user := User{ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: "argon2id$secret", CreatedAt: time.Now()}
	message := domain.Message{ID: uuid.New(), SenderID: "u1", ReceiverID: "u2", Content: "hello", CreatedAt: time.Now()}

	// When
	userKind, userDetail := Describe(string(userKey("u1")), marshalUser(user))
	messageKind, messageDetail := Describe(string(messageKey(message)), marshalMessage(message))
	indexKind, indexDetail := Describe(string(messageIndexKey(message.ID)), messageKey(message))
	emailKind, _ := Describe(userEmailPrefix+"alice@example.com", []byte("u1"))
	unknownKind, _ := Describe("other", nil)

	// Then
	req.Equal(KindUser, userKind)
	req.Contains(userDetail, "alice <alice@example.com>")
	req.NotContains(userDetail, "secret")
	req.Equal(KindMessage, messageKind)
	req.Contains(messageDetail, "u1 -> u2 read=false: hello")
	req.Equal(KindMessageIndex, indexKind)
	req.Contains(indexDetail, messagePrefix)
	req.Equal(KindUserIndex, emailKind)
	req.Equal(KindUnknown, unknownKind)
}
