// Package identity holds the node keypair and encrypts bounded-size buffers
// with it.
//
// Encryption is ECIES over secp256k1: a fresh ephemeral key is agreed with
// the node public key, the shared x-coordinate is expanded with HKDF-SHA256
// and the buffer is sealed with AES-256-GCM. Only the holder of the node
// private key can decrypt.
//
// Ciphertext layout: ephemeral_pub(33B) || nonce(12B) || ciphertext || tag(16B).
package identity

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

const (
	// PubKeyLen is the length of a compressed secp256k1 public key.
	PubKeyLen = 33

	// NonceLen is the length of the AES-GCM nonce in bytes.
	NonceLen = 12

	// GCMTagLen is the length of the GCM authentication tag in bytes.
	GCMTagLen = 16

	// Overhead is the number of bytes Encrypt adds to a plaintext.
	Overhead = PubKeyLen + NonceLen + GCMTagLen
)

// Keys is the exportable form of a keypair: hex private scalar and hex
// compressed public key.
type Keys struct {
	Private string `json:"private"`
	Public  string `json:"public"`
}

// Identity is the node's keypair. It is safe for concurrent use.
type Identity struct {
	maxBuffer int

	mu   sync.RWMutex
	priv *ec.PrivateKey
	pub  *ec.PublicKey
}

// New creates an Identity without keys. maxBuffer bounds the plaintext
// accepted by a single Encrypt call; zero or negative disables the bound.
func New(maxBuffer int) *Identity {
	return &Identity{maxBuffer: maxBuffer}
}

// GenerateKeys creates and loads a fresh keypair.
func (id *Identity) GenerateKeys() error {
	priv, err := ec.NewPrivateKey()
	if err != nil {
		return fmt.Errorf("%w: generate key: %w", ErrCrypto, err)
	}

	id.mu.Lock()
	defer id.mu.Unlock()
	id.priv = priv
	id.pub = priv.PubKey()
	return nil
}

// ImportKeys loads keys. On any failure the previously loaded keys are kept.
func (id *Identity) ImportKeys(keys Keys) error {
	privBytes, err := hex.DecodeString(keys.Private)
	if err != nil || len(privBytes) != 32 {
		return fmt.Errorf("%w: invalid private key encoding", ErrCrypto)
	}
	priv, derived := ec.PrivateKeyFromBytes(privBytes)
	if priv == nil || derived == nil {
		return fmt.Errorf("%w: invalid private key", ErrCrypto)
	}

	pubBytes, err := hex.DecodeString(keys.Public)
	if err != nil {
		return fmt.Errorf("%w: invalid public key encoding: %w", ErrCrypto, err)
	}
	pub, err := ec.PublicKeyFromBytes(pubBytes)
	if err != nil {
		return fmt.Errorf("%w: invalid public key: %w", ErrCrypto, err)
	}
	if !bytes.Equal(pub.Compressed(), derived.Compressed()) {
		return fmt.Errorf("%w: %w", ErrCrypto, ErrKeyMismatch)
	}

	id.mu.Lock()
	defer id.mu.Unlock()
	id.priv = priv
	id.pub = pub
	return nil
}

// ExportKeys returns the loaded keypair in exportable form.
func (id *Identity) ExportKeys() (Keys, error) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	if id.priv == nil {
		return Keys{}, ErrNoKeys
	}
	return Keys{
		Private: hex.EncodeToString(id.priv.Serialize()),
		Public:  hex.EncodeToString(id.pub.Compressed()),
	}, nil
}

// PublicKeyHex returns the compressed public key as hex, or "" without keys.
func (id *Identity) PublicKeyHex() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	if id.pub == nil {
		return ""
	}
	return hex.EncodeToString(id.pub.Compressed())
}

func (id *Identity) keys() (*ec.PrivateKey, *ec.PublicKey, error) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	if id.priv == nil {
		return nil, nil, ErrNoKeys
	}
	return id.priv, id.pub, nil
}

// Encrypt seals plaintext to the node public key.
func (id *Identity) Encrypt(plaintext []byte) ([]byte, error) {
	if id.maxBuffer > 0 && len(plaintext) > id.maxBuffer {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrBufferTooLarge, len(plaintext), id.maxBuffer)
	}
	_, pub, err := id.keys()
	if err != nil {
		return nil, err
	}

	ephemeral, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %w", ErrCrypto, err)
	}
	ephemeralPub := ephemeral.PubKey().Compressed()

	shared, err := sharedX(ephemeral, pub)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(shared, ephemeralPub)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: random nonce: %w", ErrCrypto, err)
	}

	out := make([]byte, 0, Overhead+len(plaintext))
	out = append(out, ephemeralPub...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the node private key.
func (id *Identity) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < Overhead {
		return nil, fmt.Errorf("%w: %w: %d bytes", ErrCrypto, ErrInvalidCiphertext, len(ciphertext))
	}
	priv, _, err := id.keys()
	if err != nil {
		return nil, err
	}

	ephemeralPub := ciphertext[:PubKeyLen]
	nonce := ciphertext[PubKeyLen : PubKeyLen+NonceLen]
	sealed := ciphertext[PubKeyLen+NonceLen:]

	ephemeral, err := ec.PublicKeyFromBytes(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: ephemeral key: %w", ErrCrypto, ErrInvalidCiphertext, err)
	}
	shared, err := sharedX(priv, ephemeral)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(shared, ephemeralPub)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, ErrDecryptionFailed)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: AES cipher: %w", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: GCM: %w", ErrCrypto, err)
	}
	return gcm, nil
}
