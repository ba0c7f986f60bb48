package server

import (
	"sync"
)

// Registry owns the live mapping from account id to its single active
// connection. Install is the only mutation that can displace a connection;
// it returns the displaced one so the caller can notify it before closing.
// Connections held here are not referenced anywhere else past the
// registry's bookkeeping.
type Registry struct {
	mu    sync.Mutex
	conns map[int]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int]*Client),
	}
}

// Install registers c as the account's active connection, atomically
// replacing any prior connection for the same account. The displaced
// connection, if any, is returned.
func (r *Registry) Install(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := r.conns[c.user.Id]
	if evicted == c {
		return nil
	}
	r.conns[c.user.Id] = c

	return evicted
}

// Remove deletes c from the registry if it is still the registered
// connection for its account. Removing a superseded connection is a no-op,
// which resolves the race between eviction and the evicted connection's own
// disconnect. Returns whether an entry was removed.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[c.user.Id] != c {
		return false
	}
	delete(r.conns, c.user.Id)

	return true
}

func (r *Registry) Active(accountId int) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[accountId]
	return c, ok
}

func (r *Registry) Online(accountId int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.conns[accountId]
	return ok
}

// ConnectionsFor resolves a member list to the currently live connections.
// Members without a live connection are simply absent from the result;
// delivery to offline members is the message store's concern, not the
// registry's.
func (r *Registry) ConnectionsFor(accountIds []int) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	var conns []*Client
	for _, id := range accountIds {
		if c, ok := r.conns[id]; ok {
			conns = append(conns, c)
		}
	}

	return conns
}

func (r *Registry) All() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}

	return conns
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}
