package node

import (
	"context"
	"sync"

	"github.com/bitfsorg/blockfs-go/chain"
)

// SubmitBlock appends b to the local chain. When b is rejected the node
// falls back to consensus resolution and reports false; the chain may have
// been replaced by a longer peer chain in the meantime.
func (n *Node) SubmitBlock(ctx context.Context, b chain.Block) (bool, error) {
	if n.chain.AddBlock(b) {
		n.saveChain()
		log.Debugw("block appended", "index", b.Index, "hash", b.Hash())
		return true, nil
	}

	log.Infow("block rejected, resolving conflicts", "index", b.Index, "proofHash", b.ProofHash())
	if _, err := n.ResolveConflicts(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// ResolveConflicts fetches every peer's chain and adopts the longest valid
// chain strictly longer than the local one. Peers that fail to answer are
// skipped. It reports whether the local chain was replaced.
func (n *Node) ResolveConflicts(ctx context.Context) (bool, error) {
	ids := n.peers.IDs()
	candidates := make([][]chain.Block, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		address, ok := n.peers.Address(id)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, n.opts.PeerTimeout)
			defer cancel()
			blocks, err := n.client.GetChain(rctx, address)
			if err != nil {
				log.Warnw("could not fetch peer chain", "peer", id, "err", err)
				return
			}
			candidates[i] = blocks
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	best, ok := n.chain.ReplaceIfLonger(candidates)
	if !ok {
		log.Debugw("local chain kept", "length", n.chain.Len(), "peers", len(ids))
		return false, nil
	}
	if err := chain.VerifyLinkage(best); err != nil {
		log.Warnw("adopted chain has broken links", "err", err)
	}
	n.saveChain()
	log.Infow("local chain replaced", "length", len(best))
	return true, nil
}
