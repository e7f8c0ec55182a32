package domain

import "time"

// Presence is the persisted mirror of a user's live connection count.
// Online is true iff the user owns at least one live connection.
// LastSeen is written exactly at the transition to zero connections.
type Presence struct {
	Online   bool
	LastSeen *time.Time
}

func Online() Presence {
	return Presence{Online: true}
}

func OfflineSince(at time.Time) Presence {
	return Presence{Online: false, LastSeen: &at}
}

// TypingSignal is transient and never persisted.
type TypingSignal struct {
	SenderID   string
	ReceiverID string
	IsTyping   bool
}
