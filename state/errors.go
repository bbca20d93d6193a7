package state

import "errors"

var (
	// ErrNotFound indicates the named document has never been stored.
	ErrNotFound = errors.New("state: document not found")

	// ErrEmptyName indicates a document name was empty.
	ErrEmptyName = errors.New("state: document name is empty")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("state: store closed")

	// ErrDecode indicates a stored document could not be decoded.
	ErrDecode = errors.New("state: decode document")
)
