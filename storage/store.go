package storage

// ChecksumLen is the required length of a checksum key (hex SHA-256).
const ChecksumLen = 64

// Store provides content-addressed storage for encrypted chunks.
// Keys are hex SHA-256 checksums of the chunk plaintext; values are opaque
// ciphertext.
type Store interface {
	// Put stores content under checksum, replacing any previous value.
	Put(checksum string, data []byte) error

	// Get retrieves content by checksum.
	Get(checksum string) ([]byte, error)

	// Delete removes content by checksum.
	Delete(checksum string) error

	// Size returns the size in bytes of stored content for checksum.
	Size(checksum string) (int64, error)

	// List returns all stored checksums.
	List() ([]string, error)
}
