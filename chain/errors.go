package chain

import "errors"

var (
	// ErrInvalidBlock indicates a block fails the genesis or proof-of-work check.
	ErrInvalidBlock = errors.New("chain: invalid block")

	// ErrInvalidChain indicates a block sequence contains an invalid block or is empty.
	ErrInvalidChain = errors.New("chain: invalid chain")

	// ErrBlockRejected indicates AddBlock refused a block and the chain was left unchanged.
	ErrBlockRejected = errors.New("chain: block rejected")

	// ErrChainBroken indicates a block's previousHash does not match its predecessor's hash.
	ErrChainBroken = errors.New("chain: block linkage broken")

	// ErrStaleTip indicates the chain tip moved while a proof search was running.
	ErrStaleTip = errors.New("chain: chain tip changed during mining")

	// ErrMinerClosed indicates work was submitted to a stopped miner.
	ErrMinerClosed = errors.New("chain: miner closed")
)
