package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

// binding keeps the owner next to the handle so Unregister never needs a
// second lookup table that could drift.
type binding struct {
	userID domain.UserID
	conn   contract.Connection
}

// Registry maps a user to its live connections (one per device).
// Every method is a single critical section.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]binding
	users       map[domain.UserID]map[domain.ConnectionID]contract.Connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[domain.ConnectionID]binding),
		users:       make(map[domain.UserID]map[domain.ConnectionID]contract.Connection),
	}
}

// Register binds conn to userID. It returns true when userID went from
// absent to present. Registering the same handle twice is a no-op; binding a
// handle that already belongs to another user is rejected.
func (r *Registry) Register(userID domain.UserID, conn contract.Connection) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.ID()
	if b, ok := r.connections[connID]; ok {
		if b.userID != userID {
			return false, fmt.Errorf("%w: %s owned by %s", errors.ErrConnectionAlreadyBound, connID, b.userID)
		}
		return false, nil
	}

	r.connections[connID] = binding{userID: userID, conn: conn}
	handles, ok := r.users[userID]
	if !ok {
		handles = make(map[domain.ConnectionID]contract.Connection)
		r.users[userID] = handles
	}
	handles[connID] = conn
	return len(handles) == 1, nil
}

// Unregister removes the handle and returns its owner. wentOffline is true
// when it was the owner's last handle; ok is false for an unknown handle.
func (r *Registry) Unregister(connID domain.ConnectionID) (domain.UserID, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.connections[connID]
	if !ok {
		return "", false, false
	}
	delete(r.connections, connID)

	handles := r.users[b.userID]
	delete(handles, connID)
	if len(handles) == 0 {
		// No empty sets left behind
		delete(r.users, b.userID)
		return b.userID, true, true
	}
	return b.userID, false, true
}

// HandlesFor returns a snapshot of the user's live handles.
// The slice may be stale as soon as the lock is released.
func (r *Registry) HandlesFor(userID domain.UserID) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles, ok := r.users[userID]
	if !ok {
		return nil
	}
	return lo.Values(handles)
}

func (r *Registry) IsOnline(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// OnlineUsers returns the sorted list of users owning at least one handle.
func (r *Registry) OnlineUsers() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := lo.Keys(r.users)
	slices.Sort(users)
	return users
}

// Count returns the number of live handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Clear drops every binding. Called once on shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections = make(map[domain.ConnectionID]binding)
	r.users = make(map[domain.UserID]map[domain.ConnectionID]contract.Connection)
}
