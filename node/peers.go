package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/peer"
	"github.com/bitfsorg/blockfs-go/storage"
)

// AddPeer adds a peer and persists the table.
func (n *Node) AddPeer(info peer.Info) error {
	if err := n.peers.Add(info.ID, info.Address); err != nil {
		return err
	}
	n.savePeers()
	log.Infow("peer added", "peer", info.ID, "address", info.Address)
	return nil
}

// RemovePeer removes a peer and persists the table.
func (n *Node) RemovePeer(id string) error {
	if err := n.peers.Remove(id); err != nil {
		return err
	}
	n.savePeers()
	log.Infow("peer removed", "peer", id)
	return nil
}

// PingPeers pings every known peer and removes those that do not answer.
// It returns the removed ids in sorted order.
func (n *Node) PingPeers(ctx context.Context) []string {
	snapshot := n.peers.Snapshot()

	var (
		mu      sync.Mutex
		removed []string
		wg      sync.WaitGroup
	)
	for id, address := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, n.opts.PeerTimeout)
			defer cancel()
			if err := n.client.Ping(pctx, address); err != nil {
				log.Infow("peer did not answer ping", "peer", id, "err", err)
				mu.Lock()
				removed = append(removed, id)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(removed) == 0 {
		return nil
	}
	for _, id := range removed {
		if err := n.peers.Remove(id); err != nil && !errors.Is(err, peer.ErrPeerNotFound) {
			log.Warnw("could not remove peer", "peer", id, "err", err)
		}
	}
	n.savePeers()
	sort.Strings(removed)
	return removed
}

// Announce registers the node with the tracker and adds every peer the
// tracker returns. Endpoints from an srv: address are tried in order.
func (n *Node) Announce(ctx context.Context) ([]peer.Info, error) {
	if n.opts.TrackerAddr == "" {
		return nil, ErrNoTracker
	}
	endpoints, err := peer.ResolveTracker(ctx, n.opts.TrackerAddr, n.srv)
	if err != nil {
		return nil, err
	}

	var merr *multierror.Error
	for _, endpoint := range endpoints {
		actx, cancel := context.WithTimeout(ctx, n.opts.PeerTimeout)
		infos, err := n.client.Announce(actx, endpoint, n.Info())
		cancel()
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}

		var added []peer.Info
		for _, info := range infos {
			if err := n.peers.Add(info.ID, info.Address); err != nil {
				continue
			}
			added = append(added, info)
		}
		n.savePeers()
		log.Infow("announced to tracker", "tracker", endpoint, "peers", len(added))
		return added, nil
	}
	return nil, merr.ErrorOrNil()
}

// broadcast offers b to every peer in the background. Failures are logged.
func (n *Node) broadcast(b chain.Block) {
	snapshot := n.peers.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	n.bg.Add(1)
	go func() {
		defer n.bg.Done()

		var (
			mu   sync.Mutex
			merr *multierror.Error
			wg   sync.WaitGroup
		)
		for id, address := range snapshot {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), n.opts.PeerTimeout)
				defer cancel()
				accepted, err := n.client.SubmitBlock(ctx, address, b)
				if err == nil && !accepted {
					err = chain.ErrBlockRejected
				}
				if err != nil {
					mu.Lock()
					merr = multierror.Append(merr, fmt.Errorf("%s: %w", id, err))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if err := merr.ErrorOrNil(); err != nil {
			log.Warnw("block broadcast incomplete", "index", b.Index, "failed", merr.Len(), "err", err)
			return
		}
		log.Debugw("block broadcast", "index", b.Index, "peers", len(snapshot))
	}()
}

// StoreChunk streams a chunk received from a peer into the hosted store,
// reading at most MaxHostedChunk bytes. It returns the stored size.
func (n *Node) StoreChunk(checksum string, r io.Reader) (int64, error) {
	return n.hosted.PutReader(checksum, r, MaxHostedChunk)
}

// OpenChunk opens a hosted chunk for streaming and reports its size.
func (n *Node) OpenChunk(checksum string) (io.ReadCloser, int64, error) {
	size, err := n.hosted.Size(checksum)
	if err != nil {
		return nil, 0, err
	}
	path, err := n.hosted.Path(checksum)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, storage.ErrNotFound
		}
		return nil, 0, fmt.Errorf("%w: %w", storage.ErrIOFailure, err)
	}
	return f, size, nil
}
