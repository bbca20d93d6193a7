package node

import "errors"

var (
	// ErrNoPeers indicates an upload was attempted with an empty peer table.
	ErrNoPeers = errors.New("node: there are no peers to upload to")

	// ErrUpload indicates a chunk transfer or block commit failed during distribution.
	ErrUpload = errors.New("node: upload failed")

	// ErrChunking indicates a file could not be read, split, encrypted, or staged.
	ErrChunking = errors.New("node: chunking failed")

	// ErrUnavailable indicates a file's chunks cannot currently be fetched.
	ErrUnavailable = errors.New("node: file unavailable")

	// ErrCorrupt indicates reconstructed content failed checksum verification.
	ErrCorrupt = errors.New("node: content corrupt")

	// ErrIO indicates a local filesystem failure.
	ErrIO = errors.New("node: I/O failure")

	// ErrNoTracker indicates Announce was called without a tracker address.
	ErrNoTracker = errors.New("node: no tracker configured")

	// ErrInvalidOptions indicates Open was called with unusable options.
	ErrInvalidOptions = errors.New("node: invalid options")
)
