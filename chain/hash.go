package chain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSize is the length in hex characters of a digest produced by HashHex.
const HashSize = 2 * sha256.Size

// HashHex returns the lowercase hex SHA-256 digest of data.
// It is the single content hash used for chunk checksums, file checksums,
// block hashes and proof-of-work.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
