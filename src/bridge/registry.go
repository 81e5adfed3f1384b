package bridge

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionNotFound distinguishes a failed registry lookup from every
// other failure mode.
var ErrSessionNotFound = errors.New("session not found")

// StreamSession is a registry entry: a live session together with its
// outbound-stream handle. Dispatch processes one inbound side-channel
// message and writes any response back over the stream.
type StreamSession interface {
	SessionID() string
	Dispatch(ctx context.Context, raw []byte) error
}

// Registry tracks live legacy-transport sessions by id. It is owned by
// the server process and injected into the transports that need it; the
// stateless transport never touches it. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]StreamSession
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]StreamSession)}
}

// Add registers a stream session under its id.
func (r *Registry) Add(sess StreamSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.SessionID()] = sess
}

// Remove deletes the session with the given id. Subsequent lookups for
// that id fail atomically with respect to concurrent dispatch.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Lookup resolves a session id, returning ErrSessionNotFound for ids that
// were never registered or have already been removed.
func (r *Registry) Lookup(id string) (StreamSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
