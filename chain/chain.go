package chain

import (
	"encoding/json"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("chain")

// Chain is the ordered, append-or-replace sequence of blocks. It is safe
// for concurrent use.
type Chain struct {
	mu     sync.RWMutex
	blocks []Block
}

// New returns a chain holding only the genesis block.
func New() *Chain {
	return &Chain{blocks: []Block{Genesis()}}
}

// IsValidChain reports whether every block in blocks passes Block.IsValid.
//
// Consecutive blocks are not checked for hash linkage; a sequence of
// individually valid blocks in any order is accepted. See VerifyLinkage.
func IsValidChain(blocks []Block) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if !b.IsValid() {
			log.Debugw("invalid block in chain", "index", b.Index, "proofHash", b.ProofHash())
			return false
		}
	}
	return true
}

// VerifyLinkage checks that blocks[0] is genesis and that every block's
// index and previousHash follow its predecessor. It is diagnostic only and
// does not take part in acceptance decisions.
func VerifyLinkage(blocks []Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidChain)
	}
	if !blocks[0].IsGenesis() {
		return fmt.Errorf("%w: block 0 is not genesis", ErrChainBroken)
	}
	for i := 1; i < len(blocks); i++ {
		prev, curr := blocks[i-1], blocks[i]
		if curr.Index != i {
			return fmt.Errorf("%w: block at position %d has index %d", ErrChainBroken, i, curr.Index)
		}
		if curr.PreviousHash != prev.Hash() {
			return fmt.Errorf("%w: block %d previousHash does not match block %d hash", ErrChainBroken, i, i-1)
		}
	}
	return nil
}

// Len returns the number of blocks including genesis.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Tip returns the last block.
func (c *Chain) Tip() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Blocks returns a copy of the block sequence.
func (c *Chain) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// AddBlock appends b if the extended sequence is still valid. The live
// chain is untouched when b is rejected.
func (c *Chain) AddBlock(b Block) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := make([]Block, len(c.blocks), len(c.blocks)+1)
	copy(candidate, c.blocks)
	candidate = append(candidate, b)

	if !IsValidChain(candidate) {
		return false
	}
	if err := VerifyLinkage(candidate); err != nil {
		log.Debugw("accepting block with broken linkage", "index", b.Index, "err", err)
	}
	c.blocks = candidate
	return true
}

// ReplaceChain swaps in blocks unconditionally. Callers validate first.
func (c *Chain) ReplaceChain(blocks []Block) {
	replacement := make([]Block, len(blocks))
	copy(replacement, blocks)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = replacement
}

// ReplaceIfLonger applies SelectLongest against the current length and
// swaps in the winner without releasing the lock in between, so a block
// appended concurrently is never overwritten by a chain that is no longer
// strictly longer. It returns the adopted chain and whether one was adopted.
func (c *Chain) ReplaceIfLonger(candidates [][]Block) ([]Block, bool) {
	valid := make([][]Block, 0, len(candidates))
	for _, cand := range candidates {
		if IsValidChain(cand) {
			valid = append(valid, cand)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	best, ok := longest(len(c.blocks), valid)
	if !ok {
		return nil, false
	}
	replacement := make([]Block, len(best))
	copy(replacement, best)
	c.blocks = replacement
	return best, true
}

// SelectLongest applies the consensus rule to candidate chains gathered
// from peers: invalid candidates are discarded, and among those strictly
// longer than localLen the longest wins, ties going to the earliest
// candidate. It returns false when no candidate qualifies.
func SelectLongest(localLen int, candidates [][]Block) ([]Block, bool) {
	valid := make([][]Block, 0, len(candidates))
	for _, cand := range candidates {
		if IsValidChain(cand) {
			valid = append(valid, cand)
		}
	}
	return longest(localLen, valid)
}

func longest(localLen int, candidates [][]Block) ([]Block, bool) {
	var best []Block
	for _, cand := range candidates {
		if len(cand) <= localLen || len(cand) <= len(best) {
			continue
		}
		best = cand
	}
	return best, best != nil
}

// chainDoc is the serialized chain: {"chain": [...]}.
type chainDoc struct {
	Chain []Block `json:"chain"`
}

// MarshalJSON encodes the chain as {"chain": [...]}.
func (c *Chain) MarshalJSON() ([]byte, error) {
	return json.Marshal(chainDoc{Chain: c.Blocks()})
}

// DecodeBlocks parses either a bare JSON array of blocks or a {"chain": [...]}
// document.
func DecodeBlocks(data []byte) ([]Block, error) {
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err == nil {
		return blocks, nil
	}
	var doc chainDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidChain, err)
	}
	return doc.Chain, nil
}
