package peer

import (
	"sort"
	"sync"
)

// Info identifies a peer on the wire.
type Info struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Table maps peer ids to network addresses. The owning node's id is never
// admitted.
type Table struct {
	self  string
	mu    sync.RWMutex
	peers map[string]string
}

// NewTable creates an empty table for the node identified by self.
func NewTable(self string) *Table {
	return &Table{self: self, peers: make(map[string]string)}
}

// Add inserts or updates a peer.
func (t *Table) Add(id, address string) error {
	if id == "" || address == "" {
		return ErrEmptyPeer
	}
	if id == t.self {
		return ErrSelfPeer
	}
	t.mu.Lock()
	t.peers[id] = address
	t.mu.Unlock()
	return nil
}

// Remove deletes a peer.
func (t *Table) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[id]; !ok {
		return ErrPeerNotFound
	}
	delete(t.peers, id)
	return nil
}

// Address returns the address of a peer.
func (t *Table) Address(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.peers[id]
	return addr, ok
}

// Has reports whether id is a known peer.
func (t *Table) Has(id string) bool {
	_, ok := t.Address(id)
	return ok
}

// IDs returns the known peer ids in sorted order.
func (t *Table) IDs() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the id to address map.
func (t *Table) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.peers))
	for id, addr := range t.peers {
		out[id] = addr
	}
	return out
}

// Replace swaps the table contents for peers. Entries naming the owning node
// or carrying an empty id or address are dropped.
func (t *Table) Replace(peers map[string]string) {
	next := make(map[string]string, len(peers))
	for id, addr := range peers {
		if id == "" || addr == "" || id == t.self {
			continue
		}
		next[id] = addr
	}
	t.mu.Lock()
	t.peers = next
	t.mu.Unlock()
}

// Len returns the number of known peers.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
