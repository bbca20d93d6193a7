// Package node owns the state of one storage node and runs its pipelines:
// chunk distribution, consensus, retrieval, and peer maintenance.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/identity"
	"github.com/bitfsorg/blockfs-go/ledger"
	"github.com/bitfsorg/blockfs-go/peer"
	"github.com/bitfsorg/blockfs-go/state"
	"github.com/bitfsorg/blockfs-go/storage"
)

var log = logging.Logger("node")

// Data directory layout.
const (
	FilesDir     = "files"
	StagingDir   = "staging"
	FetchDir     = "fetch"
	DownloadsDir = "downloads"
	StateFile    = "state.db"
)

// maxTargets is the most peers a single upload is spread across.
const maxTargets = 3

// MaxHostedChunk is the largest chunk a peer may store on this node.
const MaxHostedChunk = 64 << 20

// maxInflight bounds concurrent chunk transfers per upload or download.
const maxInflight = 8

// Options configures Open.
type Options struct {
	// DataDir holds state, hosted chunks, and downloads.
	DataDir string

	// AdvertiseAddr is the host:port peers and the tracker use to reach this node.
	AdvertiseAddr string

	// TrackerAddr is a host:port or srv:{domain} tracker address. Empty disables Announce.
	TrackerAddr string

	// ChunkSize is the plaintext size of every chunk but the last.
	ChunkSize int

	// PeerTimeout bounds every request to a peer.
	PeerTimeout time.Duration

	// Client talks to peers. Defaults to peer.NewHTTPClient(PeerTimeout).
	Client peer.Client

	// Store persists documents. Defaults to a bbolt database in DataDir.
	Store state.Store

	// SRV resolves srv: tracker addresses. Defaults to peer.NewDNSResolver("").
	SRV peer.SRVLookup
}

// Node is a single storage node. All methods are safe for concurrent use.
type Node struct {
	opts Options
	id   string

	ident  *identity.Identity
	chain  *chain.Chain
	ledger *ledger.Ledger
	peers  *peer.Table

	client peer.Client
	store  state.Store
	srv    peer.SRVLookup
	miner  *chain.Miner

	hosted    *storage.FileStore
	staging   *storage.FileStore
	fetchDir  string
	downloads string

	// commitMu serializes mine, append, ledger update and broadcast dispatch.
	commitMu sync.Mutex

	bg        sync.WaitGroup
	closeOnce sync.Once
}

// Open prepares the data directory and loads persisted state. Unreadable
// documents are logged and replaced by defaults.
func Open(opts Options) (*Node, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory is required", ErrInvalidOptions)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = storage.DefaultChunkSize
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = peer.DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = peer.NewHTTPClient(opts.PeerTimeout)
	}
	if opts.SRV == nil {
		opts.SRV = peer.NewDNSResolver("")
	}

	n := &Node{
		opts:      opts,
		ident:     identity.New(opts.ChunkSize),
		chain:     chain.New(),
		ledger:    ledger.New(),
		client:    opts.Client,
		srv:       opts.SRV,
		fetchDir:  filepath.Join(opts.DataDir, FetchDir),
		downloads: filepath.Join(opts.DataDir, DownloadsDir),
	}

	var err error
	if n.hosted, err = storage.NewFileStore(filepath.Join(opts.DataDir, FilesDir)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if n.staging, err = storage.NewFileStore(filepath.Join(opts.DataDir, StagingDir)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	for _, dir := range []string{n.fetchDir, n.downloads} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	n.store = opts.Store
	if n.store == nil {
		bolt, err := state.OpenBoltStore(filepath.Join(opts.DataDir, StateFile))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
		n.store = bolt
	}

	n.loadID()
	n.peers = peer.NewTable(n.id)
	if err := n.loadKeys(); err != nil {
		_ = n.store.Close()
		return nil, err
	}
	n.loadPeers()
	n.loadChain()
	n.loadLedger()

	n.miner = chain.NewMiner(func() string { return n.chain.Tip().Hash() })

	log.Infow("node opened",
		"id", n.id,
		"publicKey", n.ident.PublicKeyHex(),
		"dataDir", opts.DataDir,
		"blocks", n.chain.Len(),
		"files", n.ledger.Len(),
		"peers", n.peers.Len())
	return n, nil
}

// Close stops the miner, waits for background work, and closes the store.
func (n *Node) Close() error {
	var err error
	n.closeOnce.Do(func() {
		n.miner.Close()
		n.bg.Wait()
		err = n.store.Close()
	})
	return err
}

// Wait blocks until all background broadcasts have finished.
func (n *Node) Wait() { n.bg.Wait() }

// ID returns the node id.
func (n *Node) ID() string { return n.id }

// Info returns the node's id and advertised address.
func (n *Node) Info() peer.Info { return peer.Info{ID: n.id, Address: n.opts.AdvertiseAddr} }

// ChunkSize returns the configured plaintext chunk size.
func (n *Node) ChunkSize() int { return n.opts.ChunkSize }

// Identity returns the node keypair.
func (n *Node) Identity() *identity.Identity { return n.ident }

// Chain returns the node's chain.
func (n *Node) Chain() *chain.Chain { return n.chain }

// Ledger returns the node's ledger.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Peers returns the node's peer table.
func (n *Node) Peers() *peer.Table { return n.peers }

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func (n *Node) loadID() {
	data, err := n.store.Get(state.DocID)
	if err == nil && len(data) > 0 {
		n.id = string(data)
		return
	}
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		log.Warnw("could not load node id, generating a new one", "err", err)
	}
	n.id = uuid.NewString()
	if err := n.store.Put(state.DocID, []byte(n.id)); err != nil {
		log.Errorw("could not save node id", "err", err)
	}
}

func (n *Node) loadKeys() error {
	var keys identity.Keys
	err := state.GetJSON(n.store, state.DocKeys, &keys)
	if err == nil {
		if err = n.ident.ImportKeys(keys); err == nil {
			return nil
		}
	}
	if !errors.Is(err, state.ErrNotFound) {
		log.Warnw("could not load keys, generating a new pair", "err", err)
	}

	if err := n.ident.GenerateKeys(); err != nil {
		return err
	}
	n.saveKeys()
	return nil
}

func (n *Node) saveKeys() {
	keys, err := n.ident.ExportKeys()
	if err != nil {
		log.Errorw("could not export keys", "err", err)
		return
	}
	if err := state.PutJSON(n.store, state.DocKeys, keys); err != nil {
		log.Errorw("could not save keys", "err", err)
	}
}

func (n *Node) loadPeers() {
	peers := make(map[string]string)
	if err := state.GetJSON(n.store, state.DocPeers, &peers); err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			log.Warnw("could not load peers", "err", err)
		}
		return
	}
	n.peers.Replace(peers)
}

func (n *Node) savePeers() {
	if err := state.PutJSON(n.store, state.DocPeers, n.peers.Snapshot()); err != nil {
		log.Errorw("could not save peers", "err", err)
	}
}

func (n *Node) loadChain() {
	data, err := n.store.Get(state.DocChain)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			log.Warnw("could not load chain", "err", err)
		}
		n.saveChain()
		return
	}
	blocks, err := chain.DecodeBlocks(data)
	if err != nil || !chain.IsValidChain(blocks) {
		log.Warnw("persisted chain is invalid, starting from genesis", "err", err)
		n.saveChain()
		return
	}
	n.chain.ReplaceChain(blocks)
}

func (n *Node) saveChain() {
	if err := state.PutJSON(n.store, state.DocChain, n.chain); err != nil {
		log.Errorw("could not save chain", "err", err)
	}
}

func (n *Node) loadLedger() {
	data, err := n.store.Get(state.DocLedger)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			log.Warnw("could not load ledger", "err", err)
		}
		return
	}
	entries, err := ledger.DecodeEntries(data)
	if err != nil {
		log.Warnw("could not decode ledger", "err", err)
		return
	}
	n.ledger.Replace(entries)
}

func (n *Node) saveLedger() {
	if err := state.PutJSON(n.store, state.DocLedger, n.ledger); err != nil {
		log.Errorw("could not save ledger", "err", err)
	}
}
