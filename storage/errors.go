package storage

import "errors"

var (
	// ErrNotFound indicates no content exists for the given checksum.
	ErrNotFound = errors.New("storage: content not found")

	// ErrInvalidChecksum indicates the key is not a 64-character lowercase hex digest.
	ErrInvalidChecksum = errors.New("storage: checksum must be 64 lowercase hex characters")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrEmptyContent indicates an attempt to store empty content.
	ErrEmptyContent = errors.New("storage: content is empty")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrTooLarge indicates streamed content exceeded the allowed size.
	ErrTooLarge = errors.New("storage: content exceeds maximum size")

	// ErrInvalidChunkSize indicates the chunk size is not a positive integer.
	ErrInvalidChunkSize = errors.New("storage: chunk size must be positive")
)
