package state

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Document names used by the node.
const (
	DocID     = "id"
	DocKeys   = "keys"
	DocPeers  = "peers"
	DocChain  = "chain"
	DocLedger = "ledger"
)

// Store persists named opaque documents. Each Put replaces the whole document.
type Store interface {
	// Put stores data under name, replacing any previous value.
	Put(name string, data []byte) error

	// Get retrieves the document stored under name.
	Get(name string) ([]byte, error)

	// Delete removes the document stored under name. Missing documents are not an error.
	Delete(name string) error

	// Close releases resources held by the store.
	Close() error
}

// PutJSON encodes v as JSON and stores it under name.
func PutJSON(s Store, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", name, err)
	}
	return s.Put(name, data)
}

// GetJSON loads the document stored under name and decodes it into v.
func GetJSON(s Store, name string, v any) error {
	data, err := s.Get(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
	}
	return nil
}

// MemStore is an in-memory implementation of Store for testing.
type MemStore struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	closed bool
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (s *MemStore) Put(name string, data []byte) error {
	if name == "" {
		return ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.docs[name] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the document stored under name.
func (s *MemStore) Get(name string) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	data, ok := s.docs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete removes the document stored under name.
func (s *MemStore) Delete(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.docs, name)
	return nil
}

// Close marks the store closed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
