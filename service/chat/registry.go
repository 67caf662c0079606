package chat

import (
	"sync"
)

// Registry is the in-memory presence map: user -> live connections.
// It is the only shared mutable structure in the process; everything
// else of record lives in the stores. An identity is online iff its
// connection set is non-empty.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Client // user -> conn_id -> client
	byConn map[string]*Client            // conn_id -> client
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Client),
		byConn: make(map[string]*Client),
	}
}

// Add registers a connection. Idempotent per conn id. Reports whether
// the user transitioned offline -> online.
func (r *Registry) Add(c *Client) (cameOnline bool) {
	if c == nil || c.ConnID == "" || c.UserID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byUser[c.UserID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[c.UserID] = m
		cameOnline = true
	}
	m[c.ConnID] = c
	r.byConn[c.ConnID] = c
	return cameOnline
}

// Remove unregisters a connection; unknown connections are a no-op.
// Reports whether the user's set emptied (online -> offline).
func (r *Registry) Remove(c *Client) (wentOffline bool) {
	if c == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[c.ConnID]; !ok {
		return false
	}
	delete(r.byConn, c.ConnID)

	if m := r.byUser[c.UserID]; m != nil {
		delete(m, c.ConnID)
		if len(m) == 0 {
			delete(r.byUser, c.UserID)
			wentOffline = true
		}
	}
	return wentOffline
}

// ListByUser returns the user's live connections; empty means offline.
func (r *Registry) ListByUser(user string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[user]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// IsOnline is a cheap presence probe.
func (r *Registry) IsOnline(user string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[user]) > 0
}

// GetByConnID returns nil when unknown.
func (r *Registry) GetByConnID(connID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// All snapshots every connection (broadcast fan-out).
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

// OnlineCount returns the number of online users (not connections).
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
