package repositories

import (
	"time"

	"chat-dm/domain"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in BadgerDB using the protobuf wire format.
// Field numbers below are part of the on-disk format and must never be reused.
const (
	userIDField           protowire.Number = 1
	userUsernameField     protowire.Number = 2
	userEmailField        protowire.Number = 3
	userPasswordHashField protowire.Number = 4
	userIsOnlineField     protowire.Number = 5
	userLastSeenField     protowire.Number = 6
	userCreatedAtField    protowire.Number = 7

	messageIDField        protowire.Number = 1
	messageSenderField    protowire.Number = 2
	messageReceiverField  protowire.Number = 3
	messageContentField   protowire.Number = 4
	messageCreatedAtField protowire.Number = 5
	messageIsReadField    protowire.Number = 6
	messageReadAtField    protowire.Number = 7
)

type wireField struct {
	num    protowire.Number
	bytes  []byte
	varint uint64
}

func marshalUser(u User) []byte {
	var b []byte
	b = appendString(b, userIDField, u.ID)
	b = appendString(b, userUsernameField, u.Username)
	b = appendString(b, userEmailField, u.Email)
	b = appendString(b, userPasswordHashField, u.PasswordHash)
	b = appendBool(b, userIsOnlineField, u.IsOnline)
	b = appendTime(b, userLastSeenField, u.LastSeen)
	b = appendTime(b, userCreatedAtField, &u.CreatedAt)
	return b
}

func unmarshalUser(b []byte) (User, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return User{}, err
	}
	var u User
	for _, f := range fields {
		switch f.num {
		case userIDField:
			u.ID = string(f.bytes)
		case userUsernameField:
			u.Username = string(f.bytes)
		case userEmailField:
			u.Email = string(f.bytes)
		case userPasswordHashField:
			u.PasswordHash = string(f.bytes)
		case userIsOnlineField:
			u.IsOnline = f.varint != 0
		case userLastSeenField:
			u.LastSeen = toTime(f.varint)
		case userCreatedAtField:
			u.CreatedAt = *toTime(f.varint)
		}
	}
	return u, nil
}

func marshalMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, messageIDField, m.ID.String())
	b = appendString(b, messageSenderField, m.SenderID)
	b = appendString(b, messageReceiverField, m.ReceiverID)
	b = appendString(b, messageContentField, m.Content)
	b = appendTime(b, messageCreatedAtField, &m.CreatedAt)
	b = appendBool(b, messageIsReadField, m.IsRead)
	b = appendTime(b, messageReadAtField, m.ReadAt)
	return b
}

func unmarshalMessage(b []byte) (domain.Message, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return domain.Message{}, err
	}
	var m domain.Message
	for _, f := range fields {
		switch f.num {
		case messageIDField:
			id, err := uuid.ParseBytes(f.bytes)
			if err != nil {
				return domain.Message{}, err
			}
			m.ID = id
		case messageSenderField:
			m.SenderID = string(f.bytes)
		case messageReceiverField:
			m.ReceiverID = string(f.bytes)
		case messageContentField:
			m.Content = string(f.bytes)
		case messageCreatedAtField:
			m.CreatedAt = *toTime(f.varint)
		case messageIsReadField:
			m.IsRead = f.varint != 0
		case messageReadAtField:
			m.ReadAt = toTime(f.varint)
		}
	}
	return m, nil
}

// decodeFields walks a wire-format record. Unknown field types are skipped
// so that older binaries can read records written by newer ones.
func decodeFields(b []byte) ([]wireField, error) {
	var fields []wireField
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		f := wireField{num: num}
		switch typ {
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			f.bytes, n = v, m
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			f.varint, n = v, m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
		}
		b = b[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// appendTime stores a timestamp as unix nanoseconds; a nil time is omitted.
func appendTime(b []byte, num protowire.Number, t *time.Time) []byte {
	if t == nil || t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(t.UnixNano()))
}

func toTime(v uint64) *time.Time {
	t := time.Unix(0, int64(v)).UTC()
	return &t
}
