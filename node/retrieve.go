package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/ledger"
	"github.com/bitfsorg/blockfs-go/storage"
)

// CanRetrieve reports whether every chunk of entry is held by a known peer.
func (n *Node) CanRetrieve(entry ledger.Entry) bool {
	for _, c := range entry.Chunks {
		if !n.peers.Has(c.Location) {
			return false
		}
	}
	return true
}

// Retrieve fetches, decrypts, and reassembles the file described by entry
// into the downloads directory, returning the written path. Each call
// fetches into its own scratch directory, so concurrent retrievals of the
// same entry do not share ciphertext.
func (n *Node) Retrieve(ctx context.Context, entry ledger.Entry) (string, error) {
	if !n.CanRetrieve(entry) {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, entry.Name)
	}

	// One fetch per distinct checksum; repeated chunks share the ciphertext.
	holders := make(map[string]string, len(entry.Chunks))
	for _, c := range entry.Chunks {
		if _, ok := holders[c.Checksum]; !ok {
			holders[c.Checksum] = c.Location
		}
	}

	addresses := make(map[string]string, len(holders))
	for _, location := range holders {
		address, ok := n.peers.Address(location)
		if !ok {
			return "", fmt.Errorf("%w: peer %s gone", ErrUnavailable, location)
		}
		addresses[location] = address
	}

	scratch, err := os.MkdirTemp(n.fetchDir, "retrieve-")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warnw("could not remove fetched chunks", "dir", scratch, "err", err)
		}
	}()
	fetched, err := storage.NewFileStore(scratch)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflight)
	for checksum, location := range holders {
		address := addresses[location]
		g.Go(func() error {
			return n.fetchChunk(gctx, fetched, location, address, checksum)
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	buf, err := n.assemble(entry, fetched)
	if err != nil {
		return "", err
	}

	path := filepath.Join(n.downloads, downloadName(entry))
	if err := writeFileAtomic(path, buf); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}
	log.Infow("file retrieved", "name", entry.Name, "size", entry.Size, "path", path)
	return path, nil
}

func (n *Node) fetchChunk(ctx context.Context, fetched *storage.FileStore, id, address, checksum string) error {
	ctx, cancel := context.WithTimeout(ctx, n.opts.PeerTimeout)
	defer cancel()

	var ct bytes.Buffer
	if _, err := n.client.FetchChunk(ctx, address, checksum, &ct); err != nil {
		return fmt.Errorf("%w: fetch %s from %s: %w", ErrUnavailable, checksum, id, err)
	}
	if err := fetched.Put(checksum, ct.Bytes()); err != nil {
		if errors.Is(err, storage.ErrEmptyContent) {
			return fmt.Errorf("%w: empty chunk %s from %s", ErrCorrupt, checksum, id)
		}
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// assemble decrypts fetched chunks into a buffer of entry.Size bytes and
// verifies every checksum. Offsets use the chunk size recorded in entry,
// falling back to the node's chunk size for entries that predate it.
func (n *Node) assemble(entry ledger.Entry, fetched *storage.FileStore) ([]byte, error) {
	if entry.Size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrCorrupt, entry.Size)
	}
	chunkSize := entry.ChunkSize
	if chunkSize <= 0 {
		chunkSize = n.opts.ChunkSize
	}

	buf := make([]byte, entry.Size)
	for _, c := range entry.Chunks {
		ct, err := fetched.Get(c.Checksum)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
		pt, err := n.ident.Decrypt(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrCorrupt, c.Index, err)
		}
		if chain.HashHex(pt) != c.Checksum {
			return nil, fmt.Errorf("%w: chunk %d checksum mismatch", ErrCorrupt, c.Index)
		}
		offset := int64(c.Index) * int64(chunkSize)
		if c.Index < 0 || offset+int64(len(pt)) > entry.Size {
			return nil, fmt.Errorf("%w: chunk %d out of bounds", ErrCorrupt, c.Index)
		}
		copy(buf[offset:], pt)
	}
	if entry.Checksum != "" && chain.HashHex(buf) != entry.Checksum {
		return nil, fmt.Errorf("%w: file checksum mismatch", ErrCorrupt)
	}
	return buf, nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers never see a partially written file.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// downloadName keeps reconstructed files inside the downloads directory.
func downloadName(entry ledger.Entry) string {
	name := filepath.Base(filepath.Clean("/" + entry.Name))
	if name == "/" || name == "." || name == "" {
		return entry.ID
	}
	return name
}

// Download retrieves the ledger entry at index.
func (n *Node) Download(ctx context.Context, index int) (string, error) {
	entry, err := n.ledger.Get(index)
	if err != nil {
		return "", err
	}
	return n.Retrieve(ctx, entry)
}

// RemoveEntry drops a ledger entry and persists the ledger. Chunks held by
// peers are left in place.
func (n *Node) RemoveEntry(id string) (ledger.Entry, error) {
	entry, err := n.ledger.RemoveEntry(id)
	if err != nil {
		return ledger.Entry{}, err
	}
	n.saveLedger()
	log.Infow("ledger entry removed", "entry", id, "name", entry.Name)
	return entry, nil
}
