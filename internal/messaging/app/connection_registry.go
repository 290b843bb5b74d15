package app

import (
	"errors"
	"sync"

	"civic_message_service/internal/messaging/domain"
)

// ErrNotConnected the user has no live connection right now. Callers treat
// this as "leave durable state where it is", never as a failure of the
// operation that triggered the push.
var ErrNotConnected = errors.New("no live connection")

// ClientConn the subset of a websocket connection the registry needs;
// narrowed so tests can stand in a fake.
type ClientConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// ConnectionRegistry owns the user-id -> live connection mapping. One
// session per user: a newer connection evicts the previous one (last
// session wins). Injected wherever push is needed instead of living as
// ambient package state, so a distributed backing can replace it later.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]ClientConn
}

// NewConnectionRegistry create an empty registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[string]ClientConn)}
}

// Add register the user's connection, returning the evicted previous one
// (nil when there was none) so the caller can close it.
func (r *ConnectionRegistry) Add(userID string, conn ClientConn) ClientConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	return prev
}

// Remove drop the mapping, but only if conn is still the current session.
// A stale disconnect racing a fresh connect must not evict the new session.
func (r *ConnectionRegistry) Remove(userID string, conn ClientConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] != conn {
		return false
	}
	delete(r.conns, userID)
	return true
}

// IsConnected report whether the user holds a live connection here
func (r *ConnectionRegistry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Push best-effort write to the user's live connection. Returns
// ErrNotConnected when absent, or the write error when the connection raced
// to close; the caller logs and moves on.
func (r *ConnectionRegistry) Push(userID string, resp domain.WSResponse) error {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	return conn.WriteJSON(resp)
}
