package identity

import "errors"

var (
	// ErrCrypto is the umbrella error for key import/export and cipher failures.
	ErrCrypto = errors.New("identity: crypto failure")

	// ErrNoKeys indicates Encrypt or Decrypt was called before keys were loaded.
	ErrNoKeys = errors.New("identity: keys not loaded")

	// ErrBufferTooLarge indicates a plaintext exceeds the single-call capacity.
	ErrBufferTooLarge = errors.New("identity: buffer exceeds maximum size")

	// ErrInvalidCiphertext indicates the ciphertext is too short or malformed.
	ErrInvalidCiphertext = errors.New("identity: invalid ciphertext")

	// ErrDecryptionFailed indicates AES-GCM authentication failed during decryption.
	ErrDecryptionFailed = errors.New("identity: decryption failed")

	// ErrKeyMismatch indicates an imported public key does not belong to the private key.
	ErrKeyMismatch = errors.New("identity: public key does not match private key")
)
