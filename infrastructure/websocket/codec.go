package websocket

import (
	"chat-dm/domain"
	"chat-dm/domain/event"
	"chat-dm/errors"
	"encoding/json"
	"fmt"
)

const (
	SendMessageEvent = "send-message"
	TypingEvent      = "typing"
)

// DecodeCommand reads an inbound envelope into the command it carries.
// Malformed frames and unknown event names fail with ErrInvalidEvent.
func DecodeCommand(data []byte) (domain.Command, error) {
	var envelope event.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed frame", errors.ErrInvalidEvent)
	}

	switch envelope.Event {
	case SendMessageEvent:
		var cmd domain.SendMessageCommand
		if err := decodeData(envelope, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case TypingEvent:
		var cmd domain.TypingCommand
		if err := decodeData(envelope, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", errors.ErrInvalidEvent, envelope.Event)
	}
}

func decodeData(envelope event.Envelope, target any) error {
	if len(envelope.Data) == 0 {
		return fmt.Errorf("%w: %s without data", errors.ErrInvalidEvent, envelope.Event)
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return fmt.Errorf("%w: malformed %s data", errors.ErrInvalidEvent, envelope.Event)
	}
	return nil
}

// EncodeCommand builds an inbound frame, as a client would send it.
func EncodeCommand(cmd domain.Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(event.Envelope{Event: event.Name(cmd.CommandName()), Data: data})
}
