package repositories

import (
	"fmt"
	"strings"
)

// Record kinds reported by Describe.
const (
	KindUser         = "USER"
	KindUserIndex    = "USER_INDEX"
	KindMessage      = "MESSAGE"
	KindMessageIndex = "MESSAGE_INDEX"
	KindUnknown      = "UNKNOWN"
)

// Describe decodes a raw badger entry for debugging tools.
// Password hashes are never part of the detail.
func Describe(key string, val []byte) (kind, detail string) {
	switch {
	case strings.HasPrefix(key, userEmailPrefix), strings.HasPrefix(key, userNamePrefix):
		return KindUserIndex, "-> " + string(val)
	case strings.HasPrefix(key, userPrefix):
		user, err := unmarshalUser(val)
		if err != nil {
			return KindUser, "Error: unmarshal failed"
		}
		return KindUser, fmt.Sprintf("%s <%s> online=%t", user.Username, user.Email, user.IsOnline)
	case strings.HasPrefix(key, messageIndexPrefix):
		return KindMessageIndex, "-> " + string(val)
	case strings.HasPrefix(key, messagePrefix):
		message, err := unmarshalMessage(val)
		if err != nil {
			return KindMessage, "Error: unmarshal failed"
		}
		return KindMessage, fmt.Sprintf("%s -> %s read=%t: %s",
			message.SenderID, message.ReceiverID, message.IsRead, message.Content)
	default:
		return KindUnknown, ""
	}
}
