// Package presence owns the single source of truth for "who is online":
// the mapping from username to live connection handle.
package presence

import (
	"sync"

	"chat-relay/contract"
)

// Registry maps a username to its currently active connection. At most one
// entry exists per username at any instant; the newest join always wins.
type Registry struct {
	mu     sync.RWMutex
	online map[string]contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{online: make(map[string]contract.EventSink)}
}

// SetOnline unconditionally overwrites any prior mapping for username.
// A superseded connection is orphaned from future private deliveries but
// not closed; its own disconnect is resolved by RemoveIfMatches.
func (r *Registry) SetOnline(username string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[username] = sink
}

// Get returns the connection currently bound to username, if any.
func (r *Registry) Get(username string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.online[username]
	return sink, ok
}

// RemoveIfMatches scans for the username whose current mapping equals the
// given handle, removes it, and returns that username. Disconnect events
// carry only the connection handle, hence the scan by value. The equality
// check guarantees a disconnect never removes an entry set by a join that
// superseded this connection.
func (r *Registry) RemoveIfMatches(sink contract.EventSink) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for username, current := range r.online {
		if current == sink {
			delete(r.online, username)
			return username, true
		}
	}
	return "", false
}

// Online returns the number of registered usernames.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}
