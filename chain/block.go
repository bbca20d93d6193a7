package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Difficulty is the required hex prefix of a block's proof hash.
const Difficulty = "00"

// Block commits one batch of chunk placements to the chain. Blocks are
// immutable values; the hash is derived from the other fields on every read
// so it can never drift from them.
type Block struct {
	Index        int         `json:"index"`
	PreviousHash string      `json:"previousHash"`
	FileChunks   []FileChunk `json:"fileChunks"`
	Timestamp    int64       `json:"timestamp"`
	Proof        uint64      `json:"proof"`
}

// canonicalBlock fixes the field order hashed by Hash.
type canonicalBlock struct {
	Index        int         `json:"index"`
	PreviousHash string      `json:"previousHash"`
	FileChunks   []FileChunk `json:"fileChunks"`
	Timestamp    int64       `json:"timestamp"`
	Proof        uint64      `json:"proof"`
}

// wireBlock is the serialized form exchanged with peers and persisted to disk.
type wireBlock struct {
	Index        int         `json:"index"`
	PreviousHash string      `json:"previousHash"`
	FileChunks   []FileChunk `json:"fileChunks"`
	Timestamp    int64       `json:"timestamp"`
	Hash         string      `json:"hash"`
	Proof        uint64      `json:"proof"`
}

// Genesis returns the designated first block of every chain.
func Genesis() Block {
	return Block{FileChunks: []FileChunk{}}
}

// NewBlock creates a block stamped with the current time in milliseconds.
func NewBlock(index int, previousHash string, chunks []FileChunk, proof uint64) Block {
	return Block{
		Index:        index,
		PreviousHash: previousHash,
		FileChunks:   cloneChunks(chunks),
		Timestamp:    time.Now().UnixMilli(),
		Proof:        proof,
	}
}

// marshalCompact encodes v as JSON without HTML escaping and without the
// trailing newline added by json.Encoder.
func marshalCompact(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// CanonicalBytes returns the serialization hashed by Hash:
// index, previousHash, fileChunks, timestamp, proof.
func (b Block) CanonicalBytes() []byte {
	data, err := marshalCompact(canonicalBlock{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		FileChunks:   cloneChunks(b.FileChunks),
		Timestamp:    b.Timestamp,
		Proof:        b.Proof,
	})
	if err != nil {
		// Only strings and integers are encoded; this cannot fail.
		panic(fmt.Sprintf("chain: encode block: %v", err))
	}
	return data
}

// Hash returns the content hash of the block's canonical serialization.
func (b Block) Hash() string {
	return HashHex(b.CanonicalBytes())
}

// ProofHash returns the digest searched by proof-of-work:
// HashHex(previousHash || JSON(chunks) || decimal(proof)).
func ProofHash(previousHash string, chunks []FileChunk, proof uint64) string {
	encoded, err := marshalCompact(cloneChunks(chunks))
	if err != nil {
		panic(fmt.Sprintf("chain: encode chunks: %v", err))
	}
	var sb strings.Builder
	sb.Grow(len(previousHash) + len(encoded) + 20)
	sb.WriteString(previousHash)
	sb.Write(encoded)
	sb.WriteString(strconv.FormatUint(proof, 10))
	return HashHex([]byte(sb.String()))
}

// ProofHash returns the block's proof-of-work digest.
func (b Block) ProofHash() string {
	return ProofHash(b.PreviousHash, b.FileChunks, b.Proof)
}

// IsGenesis reports whether b is exactly the genesis block.
func (b Block) IsGenesis() bool {
	return b.Index == 0 && b.PreviousHash == "" && len(b.FileChunks) == 0 &&
		b.Timestamp == 0 && b.Proof == 0
}

// IsValid reports whether b is the genesis block or meets the fixed
// proof-of-work difficulty. It needs no chain context.
func (b Block) IsValid() bool {
	if b.IsGenesis() {
		return true
	}
	return strings.HasPrefix(b.ProofHash(), Difficulty)
}

// Validate returns ErrInvalidBlock when IsValid is false.
func (b Block) Validate() error {
	if !b.IsValid() {
		return fmt.Errorf("%w: block %d proof hash %s", ErrInvalidBlock, b.Index, b.ProofHash())
	}
	return nil
}

// MarshalJSON emits the wire form including the derived hash.
func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		FileChunks:   cloneChunks(b.FileChunks),
		Timestamp:    b.Timestamp,
		Hash:         b.Hash(),
		Proof:        b.Proof,
	})
}

// UnmarshalJSON reads the wire form. The transmitted hash is ignored; it is
// always recomputed from the block content.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = Block{
		Index:        w.Index,
		PreviousHash: w.PreviousHash,
		FileChunks:   cloneChunks(w.FileChunks),
		Timestamp:    w.Timestamp,
		Proof:        w.Proof,
	}
	return nil
}
