package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketDocuments = []byte("documents")

// BoltStore wraps a bbolt database holding one bucket of named documents.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("state: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("state: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return fmt.Errorf("state: create bucket %q: %w", bucketDocuments, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Put stores data under name.
func (s *BoltStore) Put(name string, data []byte) error {
	if name == "" {
		return ErrEmptyName
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(name), data)
	})
	return mapBoltErr("put "+name, err)
}

// Get retrieves the document stored under name.
func (s *BoltStore) Get(name string) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketDocuments).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, mapBoltErr("get "+name, err)
	}
	return out, nil
}

// Delete removes the document stored under name.
func (s *BoltStore) Delete(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Delete([]byte(name))
	})
	return mapBoltErr("delete "+name, err)
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

func mapBoltErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, bbolt.ErrDatabaseNotOpen):
		return ErrClosed
	default:
		return fmt.Errorf("state: %s: %w", op, err)
	}
}
