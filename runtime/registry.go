package runtime

import (
	"chat-dm/contract"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Registry tracks the live connections of every user.
// A user is online exactly when its connection set is non-empty.
// It holds no persistent state.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]map[uuid.UUID]contract.Connection // map user -> connection id -> connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]map[uuid.UUID]contract.Connection),
	}
}

// Register adds a connection to its user's set.
// It reports whether this is the user's first live connection.
// Registering the same connection twice is a no-op and never reports first.
func (r *Registry) Register(conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.connections[conn.UserID()]
	if !ok {
		set = make(map[uuid.UUID]contract.Connection)
		r.connections[conn.UserID()] = set
	}
	if _, exists := set[conn.ID()]; exists {
		return false
	}
	set[conn.ID()] = conn
	return len(set) == 1
}

// Deregister removes a connection from its user's set.
// It reports whether this was the user's last live connection.
// Deregistering an unknown connection is a no-op and never reports last.
func (r *Registry) Deregister(conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.connections[conn.UserID()]
	if !ok {
		return false
	}
	if _, exists := set[conn.ID()]; !exists {
		return false
	}
	delete(set, conn.ID())
	if len(set) == 0 {
		delete(r.connections, conn.UserID())
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[userID]) > 0
}

// ConnectionsOf returns the delivery room of a user: every live connection it owns.
func (r *Registry) ConnectionsOf(userID string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.connections[userID])
}

// ConnectionsExcept returns every live connection not owned by userID.
func (r *Registry) ConnectionsExcept(userID string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []contract.Connection
	for owner, set := range r.connections {
		if owner == userID {
			continue
		}
		conns = append(conns, lo.Values(set)...)
	}
	return conns
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.connections)
}

// ConnectionCount is the total number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.SumBy(lo.Values(r.connections), func(set map[uuid.UUID]contract.Connection) int {
		return len(set)
	})
}
