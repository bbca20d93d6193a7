package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/ledger"
	"github.com/bitfsorg/blockfs-go/storage"
)

// StagedChunk is one encrypted chunk waiting in the staging store.
type StagedChunk struct {
	Checksum      string
	PlainSize     int
	EncryptedSize int
}

// PendingUpload is a file that has been chunked and encrypted but not yet
// sent to peers.
type PendingUpload struct {
	FileName  string
	Size      int64
	Checksum  string
	ChunkSize int
	Chunks    []StagedChunk
}

// StageFile reads the file at path and stages it under its base name.
func (n *Node) StageFile(path string) (*PendingUpload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrChunking, path, err)
	}
	return n.StageData(filepath.Base(path), data)
}

// StageData splits data into chunks, encrypts each with the node key, and
// writes the ciphertext to the staging store keyed by plaintext checksum.
// Chunks staged by a failed call are removed.
func (n *Node) StageData(name string, data []byte) (*PendingUpload, error) {
	parts, err := storage.SplitIntoChunks(data, n.opts.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChunking, err)
	}

	p := &PendingUpload{
		FileName:  name,
		Size:      int64(len(data)),
		Checksum:  chain.HashHex(data),
		ChunkSize: n.opts.ChunkSize,
		Chunks:    make([]StagedChunk, 0, len(parts)),
	}
	for _, part := range parts {
		checksum := chain.HashHex(part)
		ct, err := n.ident.Encrypt(part)
		if err != nil {
			n.cleanupStaged(p)
			return nil, fmt.Errorf("%w: encrypt chunk %d: %w", ErrChunking, len(p.Chunks), err)
		}
		if err := n.staging.Put(checksum, ct); err != nil {
			n.cleanupStaged(p)
			return nil, fmt.Errorf("%w: stage chunk %d: %w", ErrChunking, len(p.Chunks), err)
		}
		p.Chunks = append(p.Chunks, StagedChunk{
			Checksum:      checksum,
			PlainSize:     len(part),
			EncryptedSize: len(ct),
		})
	}

	log.Debugw("file staged", "name", name, "size", p.Size, "chunks", len(p.Chunks))
	return p, nil
}

// cleanupStaged removes the staged ciphertext of p. Missing files are ignored.
func (n *Node) cleanupStaged(p *PendingUpload) {
	for _, c := range p.Chunks {
		if err := n.staging.Delete(c.Checksum); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warnw("could not remove staged chunk", "checksum", c.Checksum, "err", err)
		}
	}
}

// Distribute sends the staged chunks of p round-robin to up to three randomly
// chosen peers, then mines and commits a block recording the placements.
// The ledger gains an entry only when the block is appended directly. Staged
// chunks are removed whatever the outcome.
func (n *Node) Distribute(ctx context.Context, p *PendingUpload) (*chain.Block, error) {
	defer n.cleanupStaged(p)

	peers := n.peers.Snapshot()
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	targets := lo.Samples(lo.Keys(peers), maxTargets)

	descriptors := make([]chain.FileChunk, len(p.Chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflight)
	for i, c := range p.Chunks {
		target := targets[i%len(targets)]
		address := peers[target]
		descriptors[i] = chain.FileChunk{
			Index:    i,
			Checksum: c.Checksum,
			Location: target,
			Size:     c.EncryptedSize,
		}
		g.Go(func() error {
			return n.sendChunk(gctx, target, address, c.Checksum)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	n.commitMu.Lock()
	defer n.commitMu.Unlock()

	b, err := n.mineOnTip(ctx, descriptors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	accepted, err := n.SubmitBlock(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if !accepted {
		return nil, fmt.Errorf("%w: %w", ErrUpload, chain.ErrBlockRejected)
	}

	entry := n.ledger.Append(ledger.Entry{
		Name:      p.FileName,
		Size:      p.Size,
		Chunks:    descriptors,
		Checksum:  p.Checksum,
		ChunkSize: p.ChunkSize,
	})
	n.saveLedger()
	n.broadcast(b)

	log.Infow("file uploaded",
		"name", p.FileName,
		"entry", entry.ID,
		"block", b.Index,
		"chunks", len(descriptors),
		"peers", targets)
	return &b, nil
}

func (n *Node) sendChunk(ctx context.Context, id, address, checksum string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ct, err := n.staging.Get(checksum)
	if err != nil {
		return fmt.Errorf("read staged chunk %s: %w", checksum, err)
	}
	ctx, cancel := context.WithTimeout(ctx, n.opts.PeerTimeout)
	defer cancel()
	if err := n.client.UploadChunk(ctx, address, checksum, bytes.NewReader(ct)); err != nil {
		return fmt.Errorf("send chunk %s to %s: %w", checksum, id, err)
	}
	return nil
}

// mineOnTip mines a block extending the current tip, starting over whenever
// the tip moves underneath the search.
func (n *Node) mineOnTip(ctx context.Context, descriptors []chain.FileChunk) (chain.Block, error) {
	for {
		tip := n.chain.Tip()
		prev := tip.Hash()
		start := time.Now()
		proof, err := n.miner.Submit(ctx, prev, descriptors)
		if errors.Is(err, chain.ErrStaleTip) {
			log.Debugw("tip moved while mining, restarting", "previousHash", prev)
			continue
		}
		if err != nil {
			return chain.Block{}, err
		}
		b := chain.NewBlock(tip.Index+1, prev, descriptors, proof)
		log.Debugw("block mined", "index", b.Index, "proof", proof, "elapsed", time.Since(start))
		return b, nil
	}
}

// Upload stages the file at path and distributes it.
func (n *Node) Upload(ctx context.Context, path string) (*chain.Block, error) {
	if n.peers.Len() == 0 {
		return nil, ErrNoPeers
	}
	p, err := n.StageFile(path)
	if err != nil {
		return nil, err
	}
	return n.Distribute(ctx, p)
}

// UploadData stages data under name and distributes it.
func (n *Node) UploadData(ctx context.Context, name string, data []byte) (*chain.Block, error) {
	if n.peers.Len() == 0 {
		return nil, ErrNoPeers
	}
	p, err := n.StageData(name, data)
	if err != nil {
		return nil, err
	}
	return n.Distribute(ctx, p)
}
