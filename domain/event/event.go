// Package event defines the outbound events pushed to live connections.
package event

import (
	"chat-dm/domain"
)

type Name string

const (
	ReceiveMessageName Name = "receive-message"
	MessageSentName    Name = "message-sent"
	UserTypingName     Name = "user-typing"
	UserOnlineName     Name = "user-online"
	UserOfflineName    Name = "user-offline"
	ErrorName          Name = "error"
)

// Event is anything the core delivers to a connection.
// Payload is the value serialized as the envelope data.
type Event interface {
	Name() Name
	Payload() any
}

// ReceiveMessage is delivered to every connection of the receiver's delivery room.
type ReceiveMessage struct {
	Message domain.MessageView
}

func (ReceiveMessage) Name() Name     { return ReceiveMessageName }
func (e ReceiveMessage) Payload() any { return e.Message }

// MessageSent acknowledges the originating connection once the message is persisted.
type MessageSent struct {
	Message domain.MessageView
}

func (MessageSent) Name() Name     { return MessageSentName }
func (e MessageSent) Payload() any { return e.Message }

type UserTyping struct {
	Sender   string `json:"sender"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

func (UserTyping) Name() Name     { return UserTypingName }
func (e UserTyping) Payload() any { return e }

type UserOnline struct {
	UserID string `json:"userId"`
}

func (UserOnline) Name() Name     { return UserOnlineName }
func (e UserOnline) Payload() any { return e }

type UserOffline struct {
	UserID string `json:"userId"`
}

func (UserOffline) Name() Name     { return UserOfflineName }
func (e UserOffline) Payload() any { return e }

// Error is scoped to the originating connection only.
type Error struct {
	Message string `json:"message"`
}

func (Error) Name() Name     { return ErrorName }
func (e Error) Payload() any { return e }

// MessageID returns the id carried by message events, if any.
func MessageID(e Event) (string, bool) {
	switch evt := e.(type) {
	case ReceiveMessage:
		return evt.Message.ID.String(), true
	case MessageSent:
		return evt.Message.ID.String(), true
	default:
		return "", false
	}
}
