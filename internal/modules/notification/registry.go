// README: Connection registry mapping a user to the live session that should receive pushes.
package notification

import (
	"sync"

	"foodline/internal/types"
)

// Conn is a live push channel to one client session.
type Conn interface {
	// Send queues a frame without blocking; false means it was not accepted.
	Send(data []byte) bool
	Close()
}

// Registry holds at most one session per user. A reconnect overwrites the
// previous mapping; disconnects are matched by handle so a stale session
// never evicts the newer one.
type Registry struct {
	mu     sync.RWMutex
	byUser map[types.ID]Conn
	byConn map[Conn]types.ID
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[types.ID]Conn),
		byConn: make(map[Conn]types.ID),
	}
}

// Register maps userID to c. It returns false after Close.
func (r *Registry) Register(userID types.ID, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if prev, ok := r.byUser[userID]; ok && prev != c {
		delete(r.byConn, prev)
	}
	if prevUser, ok := r.byConn[c]; ok && prevUser != userID {
		delete(r.byUser, prevUser)
	}
	r.byUser[userID] = c
	r.byConn[c] = userID
	return true
}

func (r *Registry) Lookup(userID types.ID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Unregister clears the mapping owned by c, if it still owns one.
func (r *Registry) Unregister(c Conn) (types.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[c]
	if !ok {
		return "", false
	}
	delete(r.byConn, c)
	if r.byUser[userID] == c {
		delete(r.byUser, userID)
	}
	return userID, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Close drops every mapping and closes the sessions. Later registrations are refused.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.byConn))
	for c := range r.byConn {
		conns = append(conns, c)
	}
	r.byUser = make(map[types.ID]Conn)
	r.byConn = make(map[Conn]types.ID)
	r.closed = true
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
