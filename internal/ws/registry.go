package ws

import (
	"sync"

	"github.com/example/lynk/internal/types"
)

// Registry tracks every live connection per user so the rest of the system can
// answer "is this user online" and detect the 0<->1 presence transitions.
// The per-user entry is removed the instant its set empties; online is exactly
// "entry exists".
type Registry struct {
	mu    sync.RWMutex
	users map[types.UserID]map[*Connection]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[types.UserID]map[*Connection]struct{})}
}

// Register adds the connection to the user's set. It reports whether this was
// the user's first live connection and the resulting total.
func (r *Registry) Register(userID types.UserID, c *Connection) (first bool, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.users[userID]
	if conns == nil {
		conns = make(map[*Connection]struct{})
		r.users[userID] = conns
		first = true
	}
	conns[c] = struct{}{}
	gatewayConnections.Set(float64(r.totalLocked()))
	gatewayOnlineUsers.Set(float64(len(r.users)))
	return first, len(conns)
}

// Unregister removes the connection and deletes the user's entry when it
// empties. It reports whether this was the user's last live connection and the
// resulting total. Unknown users or handles are no-ops with correct flags.
func (r *Registry) Unregister(userID types.UserID, c *Connection) (last bool, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.users[userID]
	if conns == nil {
		return false, 0
	}
	if _, ok := conns[c]; !ok {
		return false, len(conns)
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.users, userID)
		last = true
	}
	gatewayConnections.Set(float64(r.totalLocked()))
	gatewayOnlineUsers.Set(float64(len(r.users)))
	return last, len(conns)
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID types.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineUserIDs returns the ids of every user with a live connection.
func (r *Registry) OnlineUserIDs() []types.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.UserID, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionsFor returns the user's live connections, empty when offline.
func (r *Registry) ConnectionsFor(userID types.UserID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.users[userID]))
	for c := range r.users[userID] {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) totalLocked() int {
	var n int
	for _, conns := range r.users {
		n += len(conns)
	}
	return n
}
