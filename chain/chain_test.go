package chain

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks(location string, n int) []FileChunk {
	chunks := make([]FileChunk, n)
	for i := range chunks {
		chunks[i] = FileChunk{
			Index:    i,
			Checksum: HashHex([]byte{byte(i), byte(n)}),
			Location: location,
			Size:     100 + i,
		}
	}
	return chunks
}

func minedBlock(t *testing.T, index int, previousHash string, chunks []FileChunk) Block {
	t.Helper()
	proof, err := Mine(context.Background(), previousHash, chunks)
	require.NoError(t, err)
	return NewBlock(index, previousHash, chunks, proof)
}

// invalidProof returns the first nonce whose proof hash misses the target.
func invalidProof(previousHash string, chunks []FileChunk) uint64 {
	var p uint64
	for strings.HasPrefix(ProofHash(previousHash, chunks, p), Difficulty) {
		p++
	}
	return p
}

// buildChain returns a linked, valid chain of n blocks including genesis.
func buildChain(t *testing.T, n int, location string) []Block {
	t.Helper()
	blocks := []Block{Genesis()}
	for i := 1; i < n; i++ {
		prev := blocks[i-1]
		blocks = append(blocks, minedBlock(t, i, prev.Hash(), testChunks(location, i)))
	}
	return blocks
}

// ---------------------------------------------------------------------------
// Block tests
// ---------------------------------------------------------------------------

func TestHashHex(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashHex(nil))
	assert.Len(t, HashHex([]byte("abc")), HashSize)
}

func TestGenesis_IsValid(t *testing.T) {
	g := Genesis()
	assert.True(t, g.IsGenesis())
	assert.True(t, g.IsValid())
	assert.NoError(t, g.Validate())
	assert.Equal(t, g.Hash(), Genesis().Hash(), "genesis hash must be stable")
}

func TestGenesis_AlteredIsNotGenesis(t *testing.T) {
	g := Genesis()
	g.Timestamp = 1
	assert.False(t, g.IsGenesis())
}

func TestProofHash_Formula(t *testing.T) {
	chunks := []FileChunk{{Index: 0, Checksum: "ab", Location: "p1", Size: 10}}
	want := HashHex([]byte(`prev[{"index":0,"checksum":"ab","location":"p1","size":10}]7`))
	assert.Equal(t, want, ProofHash("prev", chunks, 7))

	// Empty and nil chunk sets hash identically as "[]".
	assert.Equal(t, HashHex([]byte("x[]0")), ProofHash("x", nil, 0))
	assert.Equal(t, ProofHash("x", nil, 3), ProofHash("x", []FileChunk{}, 3))
}

func TestBlock_CanonicalBytesOrder(t *testing.T) {
	b := Block{Index: 2, PreviousHash: "p", FileChunks: nil, Timestamp: 5, Proof: 9}
	assert.Equal(t, `{"index":2,"previousHash":"p","fileChunks":[],"timestamp":5,"proof":9}`, string(b.CanonicalBytes()))
	assert.Equal(t, HashHex(b.CanonicalBytes()), b.Hash())
}

func TestMine_ProducesValidBlocks(t *testing.T) {
	tests := []struct {
		name   string
		prev   string
		chunks []FileChunk
	}{
		{"empty chunks", Genesis().Hash(), nil},
		{"one chunk", "abc", testChunks("peer-a", 1)},
		{"many chunks", HashHex([]byte("tip")), testChunks("peer-b", 7)},
		{"html chars", "<&>", []FileChunk{{Checksum: "<x>", Location: "a&b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof, err := Mine(context.Background(), tt.prev, tt.chunks)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(ProofHash(tt.prev, tt.chunks, proof), "00"))

			b := NewBlock(1, tt.prev, tt.chunks, proof)
			assert.True(t, b.IsValid())

			again, err := Mine(context.Background(), tt.prev, tt.chunks)
			require.NoError(t, err)
			assert.Equal(t, proof, again, "mining is deterministic")
		})
	}
}

func TestMine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Mine(ctx, "prev", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBlock_InvalidProof(t *testing.T) {
	chunks := testChunks("p", 2)
	b := NewBlock(1, "prev", chunks, invalidProof("prev", chunks))
	assert.False(t, b.IsValid())
	assert.ErrorIs(t, b.Validate(), ErrInvalidBlock)
}

func TestBlock_ProofIgnoresIndexAndTimestamp(t *testing.T) {
	chunks := testChunks("p", 1)
	b := minedBlock(t, 1, "prev", chunks)
	b.Index = 42
	b.Timestamp = 0
	assert.True(t, b.IsValid())
}

func TestBlock_JSONWireFormat(t *testing.T) {
	b := minedBlock(t, 1, Genesis().Hash(), testChunks("peer-x", 2))

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"index", "previousHash", "fileChunks", "timestamp", "hash", "proof"} {
		assert.Contains(t, fields, key)
	}
	assert.JSONEq(t, `"`+b.Hash()+`"`, string(fields["hash"]))

	var decoded Block
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, b, decoded)
}

func TestBlock_UnmarshalRecomputesHash(t *testing.T) {
	b := minedBlock(t, 1, "prev", testChunks("p", 1))
	data, err := json.Marshal(b)
	require.NoError(t, err)

	tampered := strings.Replace(string(data), b.Hash(), strings.Repeat("f", HashSize), 1)
	var decoded Block
	require.NoError(t, json.Unmarshal([]byte(tampered), &decoded))
	assert.Equal(t, b.Hash(), decoded.Hash())
}

func TestNewBlock_CopiesChunks(t *testing.T) {
	chunks := testChunks("p", 2)
	b := NewBlock(1, "prev", chunks, 0)
	chunks[0].Location = "changed"
	assert.Equal(t, "p", b.FileChunks[0].Location)
}

// ---------------------------------------------------------------------------
// Chain tests
// ---------------------------------------------------------------------------

func TestNew_StartsWithGenesis(t *testing.T) {
	c := New()
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Tip().IsGenesis())
}

func TestChain_AddBlockAccepted(t *testing.T) {
	c := New()
	b := minedBlock(t, 1, c.Tip().Hash(), testChunks("p", 3))

	assert.True(t, c.AddBlock(b))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, b.Hash(), c.Tip().Hash())
	assert.NoError(t, VerifyLinkage(c.Blocks()))
}

func TestChain_AddBlockRejectedLeavesChain(t *testing.T) {
	c := New()
	chunks := testChunks("p", 1)
	bad := NewBlock(1, c.Tip().Hash(), chunks, invalidProof(c.Tip().Hash(), chunks))

	assert.False(t, c.AddBlock(bad))
	assert.Equal(t, 1, c.Len())
}

func TestChain_AddBlockLinkageUnchecked(t *testing.T) {
	c := New()
	first := minedBlock(t, 1, c.Tip().Hash(), testChunks("p", 1))
	require.True(t, c.AddBlock(first))

	// previousHash does not reference the tip, and the proof fails: rejected.
	chunks := testChunks("q", 2)
	bad := NewBlock(2, "not-the-tip", chunks, invalidProof("not-the-tip", chunks))
	assert.False(t, c.AddBlock(bad))

	// Same broken linkage with a valid proof: accepted.
	unlinked := minedBlock(t, 2, "not-the-tip", chunks)
	assert.True(t, c.AddBlock(unlinked))
	assert.Equal(t, 3, c.Len())
	assert.ErrorIs(t, VerifyLinkage(c.Blocks()), ErrChainBroken)
}

func TestIsValidChain(t *testing.T) {
	valid := buildChain(t, 4, "p")
	assert.True(t, IsValidChain(valid))
	assert.False(t, IsValidChain(nil))

	chunks := testChunks("z", 1)
	broken := append(append([]Block{}, valid...), NewBlock(4, valid[3].Hash(), chunks, invalidProof(valid[3].Hash(), chunks)))
	assert.False(t, IsValidChain(broken))

	// Scrambled order still passes per-block validity.
	scrambled := []Block{valid[0], valid[3], valid[1], valid[2]}
	assert.True(t, IsValidChain(scrambled))
	assert.Error(t, VerifyLinkage(scrambled))
}

func TestChain_ReplaceChain(t *testing.T) {
	c := New()
	replacement := buildChain(t, 5, "p")
	c.ReplaceChain(replacement)
	assert.Equal(t, 5, c.Len())

	// The chain keeps its own copy.
	replacement[4] = Genesis()
	assert.False(t, c.Tip().IsGenesis())
}

func TestChain_BlocksReturnsCopy(t *testing.T) {
	c := New()
	blocks := c.Blocks()
	blocks[0].Proof = 99
	assert.True(t, c.Tip().IsGenesis())
}

func TestChain_JSONRoundTrip(t *testing.T) {
	c := New()
	c.ReplaceChain(buildChain(t, 3, "p"))

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"chain":[`))

	blocks, err := DecodeBlocks(data)
	require.NoError(t, err)
	assert.Equal(t, c.Blocks(), blocks)

	bare, err := json.Marshal(c.Blocks())
	require.NoError(t, err)
	blocks, err = DecodeBlocks(bare)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)

	_, err = DecodeBlocks([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidChain)
}

// ---------------------------------------------------------------------------
// Consensus selection tests
// ---------------------------------------------------------------------------

func TestSelectLongest_AdoptsLongerValid(t *testing.T) {
	five := buildChain(t, 5, "a")
	seven := buildChain(t, 7, "b")

	best, ok := SelectLongest(5, [][]Block{five, seven})
	require.True(t, ok)
	assert.Len(t, best, 7)
	assert.Equal(t, seven[6].Hash(), best[6].Hash())
}

func TestSelectLongest_NoneLonger(t *testing.T) {
	five := buildChain(t, 5, "a")
	_, ok := SelectLongest(5, [][]Block{five, buildChain(t, 3, "b")})
	assert.False(t, ok)
}

func TestSelectLongest_SkipsInvalid(t *testing.T) {
	long := buildChain(t, 6, "a")
	chunks := testChunks("x", 1)
	long[3] = NewBlock(3, long[2].Hash(), chunks, invalidProof(long[2].Hash(), chunks))
	short := buildChain(t, 4, "b")

	best, ok := SelectLongest(2, [][]Block{long, short})
	require.True(t, ok)
	assert.Len(t, best, 4)
}

func TestSelectLongest_TieGoesToFirst(t *testing.T) {
	first := buildChain(t, 4, "first")
	second := buildChain(t, 4, "second")

	best, ok := SelectLongest(1, [][]Block{first, second})
	require.True(t, ok)
	assert.Equal(t, first[3].Hash(), best[3].Hash())
}

func TestChain_ReplaceIfLonger(t *testing.T) {
	c := New()
	c.ReplaceChain(buildChain(t, 5, "local"))

	_, ok := c.ReplaceIfLonger([][]Block{buildChain(t, 5, "a"), buildChain(t, 3, "b")})
	assert.False(t, ok)
	assert.Equal(t, 5, c.Len())

	six := buildChain(t, 6, "c")
	best, ok := c.ReplaceIfLonger([][]Block{six})
	require.True(t, ok)
	assert.Len(t, best, 6)
	assert.Equal(t, six[5].Hash(), c.Tip().Hash())

	// The chain keeps its own copy.
	six[5] = Genesis()
	assert.False(t, c.Tip().IsGenesis())
}

func TestChain_ReplaceIfLongerSeesConcurrentAppends(t *testing.T) {
	local := buildChain(t, 5, "local")
	peer := buildChain(t, 6, "peer")

	c := New()
	c.ReplaceChain(local)

	// Candidates were gathered while the chain had five blocks; two blocks
	// land before the decision.
	tip := c.Tip()
	b5 := minedBlock(t, 5, tip.Hash(), testChunks("x", 1))
	require.True(t, c.AddBlock(b5))
	b6 := minedBlock(t, 6, b5.Hash(), testChunks("x", 2))
	require.True(t, c.AddBlock(b6))

	_, ok := c.ReplaceIfLonger([][]Block{peer})
	assert.False(t, ok)
	assert.Equal(t, 7, c.Len())
	assert.Equal(t, b6.Hash(), c.Tip().Hash())
}

func TestChain_ReplaceIfLongerNeverShrinks(t *testing.T) {
	candidates := [][]Block{buildChain(t, 4, "a"), buildChain(t, 6, "b")}
	extra := make([]Block, 8)
	for i := range extra {
		extra[i] = minedBlock(t, i+1, "", testChunks("y", i+1))
	}

	c := New()
	var shrank atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, b := range extra {
			c.AddBlock(b)
		}
	}()
	last := c.Len()
	for i := 0; i < 50; i++ {
		c.ReplaceIfLonger(candidates)
		if l := c.Len(); l < last {
			shrank.Store(true)
		} else {
			last = l
		}
	}
	<-done
	assert.False(t, shrank.Load())
	assert.GreaterOrEqual(t, c.Len(), 6)
}

// ---------------------------------------------------------------------------
// Miner tests
// ---------------------------------------------------------------------------

func TestMiner_Submit(t *testing.T) {
	c := New()
	m := NewMiner(func() string { return c.Tip().Hash() })
	defer m.Close()

	chunks := testChunks("p", 3)
	proof, err := m.Submit(context.Background(), c.Tip().Hash(), chunks)
	require.NoError(t, err)

	want, err := Mine(context.Background(), c.Tip().Hash(), chunks)
	require.NoError(t, err)
	assert.Equal(t, want, proof)
}

func TestMiner_StaleTip(t *testing.T) {
	var calls atomic.Int32
	m := NewMiner(func() string {
		calls.Add(1)
		return "moved-on"
	})
	defer m.Close()

	_, err := m.Submit(context.Background(), "old-tip", testChunks("p", 1))
	assert.ErrorIs(t, err, ErrStaleTip)
	assert.Positive(t, calls.Load())
}

func TestMiner_SubmitAfterClose(t *testing.T) {
	m := NewMiner(nil)
	m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := m.Submit(ctx, "prev", nil)
	assert.ErrorIs(t, err, ErrMinerClosed)
}
