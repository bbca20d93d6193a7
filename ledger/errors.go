package ledger

import "errors"

var (
	// ErrNotFound indicates no ledger entry matches the requested id or index.
	ErrNotFound = errors.New("ledger: entry not found")
)
