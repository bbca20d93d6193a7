package identity

import (
	"crypto/sha256"
	"fmt"
	"io"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"golang.org/x/crypto/hkdf"
)

const (
	// hkdfInfo is the info string bound into every chunk key derivation.
	hkdfInfo = "blockfs-chunk-encryption"

	// aesKeyLen is the length of the derived AES-256 key in bytes.
	aesKeyLen = 32
)

// sharedX computes ECDH(privateKey, publicKey) and returns the x-coordinate
// of the shared point as 32 zero-padded big-endian bytes.
func sharedX(privateKey *ec.PrivateKey, publicKey *ec.PublicKey) ([]byte, error) {
	point, err := privateKey.DeriveSharedSecret(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH: %w", ErrCrypto, err)
	}
	xBytes := point.X.Bytes()
	if len(xBytes) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(xBytes):], xBytes)
		return padded, nil
	}
	return xBytes[:32], nil
}

// deriveKey derives the AES-256 key for one message:
//
//	aes_key = HKDF-SHA256(ikm = shared_x, salt = ephemeral_pub, info = hkdfInfo)
func deriveKey(shared, ephemeralPub []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, shared, ephemeralPub, []byte(hkdfInfo))
	key := make([]byte, aesKeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: HKDF: %w", ErrCrypto, err)
	}
	return key, nil
}
