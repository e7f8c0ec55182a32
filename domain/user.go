// Package domain contains core concepts of the direct messaging system.
// No runtime, network, or storage logic should be added here.
package domain

// User is the identity bound to a session.
// It is owned by the user repository and referenced, never mutated, by the core.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Participant is the denormalized view of a user embedded in a message.
type Participant struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

func (u User) Participant() Participant {
	return Participant{ID: u.ID, Username: u.Username}
}
