package peer

import (
	"context"
	"io"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/ledger"
)

// Client speaks the node-to-node protocol. Every method takes the target
// peer's address; implementations bound each call by their own timeout in
// addition to ctx.
type Client interface {
	// Ping checks that the peer is alive.
	Ping(ctx context.Context, address string) error

	// GetID returns the peer's node id.
	GetID(ctx context.Context, address string) (string, error)

	// GetPeers returns the peer's own peer table.
	GetPeers(ctx context.Context, address string) (map[string]string, error)

	// AddPeer asks the peer to add info to its table.
	AddPeer(ctx context.Context, address string, info Info) error

	// RemovePeer asks the peer to drop id from its table.
	RemovePeer(ctx context.Context, address, id string) error

	// GetChain downloads the peer's full chain.
	GetChain(ctx context.Context, address string) ([]chain.Block, error)

	// SubmitBlock offers a block to the peer and reports whether it was appended.
	SubmitBlock(ctx context.Context, address string, b chain.Block) (bool, error)

	// UploadChunk sends an encrypted chunk stored by the peer under checksum.
	UploadChunk(ctx context.Context, address, checksum string, r io.Reader) error

	// FetchChunk streams the encrypted chunk stored under checksum into w.
	FetchChunk(ctx context.Context, address, checksum string, w io.Writer) (int64, error)

	// GetLedger downloads the peer's ledger entries.
	GetLedger(ctx context.Context, address string) ([]ledger.Entry, error)

	// Announce registers self with a tracker and returns the peers it knows.
	Announce(ctx context.Context, tracker string, self Info) ([]Info, error)
}
