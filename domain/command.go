package domain

// Command is an inbound intent read from a connection.
type Command interface {
	CommandName() string
}

type SendMessageCommand struct {
	Receiver string `json:"receiver" validate:"required,max=64"`
	Content  string `json:"content" validate:"required"`
}

func (SendMessageCommand) CommandName() string { return "send-message" }

type TypingCommand struct {
	Receiver string `json:"receiver" validate:"required,max=64"`
	IsTyping bool   `json:"isTyping"`
}

func (TypingCommand) CommandName() string { return "typing" }
