// Package ledger maps uploaded files to the chunk descriptors needed to
// rebuild them.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bitfsorg/blockfs-go/chain"
)

// Entry records one uploaded file.
type Entry struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Size     int64             `json:"size"`
	Chunks   []chain.FileChunk `json:"chunks"`
	Checksum string            `json:"checksum"`

	// ChunkSize is the plaintext chunk size the file was split with. Zero
	// in entries written before it was recorded.
	ChunkSize int `json:"chunkSize,omitempty"`
}

// Ledger is an ordered list of entries. It is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make([]Entry, 0)}
}

// AddEntry appends an entry with a fresh id and returns it.
func (l *Ledger) AddEntry(name string, chunks []chain.FileChunk, size int64, checksum string) Entry {
	return l.Append(Entry{Name: name, Size: size, Chunks: chunks, Checksum: checksum})
}

// Append stores a copy of entry under a fresh id and returns it.
func (l *Ledger) Append(entry Entry) Entry {
	entry.ID = uuid.NewString()
	entry.Chunks = append([]chain.FileChunk{}, entry.Chunks...)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return entry
}

// RemoveEntry removes and returns the entry with the given id.
func (l *Ledger) RemoveEntry(id string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: id %s", ErrNotFound, id)
}

// Replace swaps in entries wholesale.
func (l *Ledger) Replace(entries []Entry) {
	replacement := make([]Entry, len(entries))
	copy(replacement, entries)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = replacement
}

// Get returns the entry at position index.
func (l *Ledger) Get(index int) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index < 0 || index >= len(l.entries) {
		return Entry{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return l.entries[index], nil
}

// Entries returns a copy of all entries in insertion order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

type ledgerDoc struct {
	Entries []Entry `json:"entries"`
}

// MarshalJSON encodes the ledger as {"entries": [...]}.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerDoc{Entries: l.Entries()})
}

// DecodeEntries parses either a bare JSON array of entries or an
// {"entries": [...]} document.
func DecodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}
	var doc ledgerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ledger: decode: %w", err)
	}
	return doc.Entries, nil
}
