package peer

import (
	"context"
	"io"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/ledger"
)

// MockClient is a test double for Client.
// All function fields must be set before the corresponding method is called.
type MockClient struct {
	PingFn        func(ctx context.Context, address string) error
	GetIDFn       func(ctx context.Context, address string) (string, error)
	GetPeersFn    func(ctx context.Context, address string) (map[string]string, error)
	AddPeerFn     func(ctx context.Context, address string, info Info) error
	RemovePeerFn  func(ctx context.Context, address, id string) error
	GetChainFn    func(ctx context.Context, address string) ([]chain.Block, error)
	SubmitBlockFn func(ctx context.Context, address string, b chain.Block) (bool, error)
	UploadChunkFn func(ctx context.Context, address, checksum string, r io.Reader) error
	FetchChunkFn  func(ctx context.Context, address, checksum string, w io.Writer) (int64, error)
	GetLedgerFn   func(ctx context.Context, address string) ([]ledger.Entry, error)
	AnnounceFn    func(ctx context.Context, tracker string, self Info) ([]Info, error)
}

// Compile-time interface check.
var _ Client = (*MockClient)(nil)

func (m *MockClient) Ping(ctx context.Context, address string) error {
	return m.PingFn(ctx, address)
}
func (m *MockClient) GetID(ctx context.Context, address string) (string, error) {
	return m.GetIDFn(ctx, address)
}
func (m *MockClient) GetPeers(ctx context.Context, address string) (map[string]string, error) {
	return m.GetPeersFn(ctx, address)
}
func (m *MockClient) AddPeer(ctx context.Context, address string, info Info) error {
	return m.AddPeerFn(ctx, address, info)
}
func (m *MockClient) RemovePeer(ctx context.Context, address, id string) error {
	return m.RemovePeerFn(ctx, address, id)
}
func (m *MockClient) GetChain(ctx context.Context, address string) ([]chain.Block, error) {
	return m.GetChainFn(ctx, address)
}
func (m *MockClient) SubmitBlock(ctx context.Context, address string, b chain.Block) (bool, error) {
	return m.SubmitBlockFn(ctx, address, b)
}
func (m *MockClient) UploadChunk(ctx context.Context, address, checksum string, r io.Reader) error {
	return m.UploadChunkFn(ctx, address, checksum, r)
}
func (m *MockClient) FetchChunk(ctx context.Context, address, checksum string, w io.Writer) (int64, error) {
	return m.FetchChunkFn(ctx, address, checksum, w)
}
func (m *MockClient) GetLedger(ctx context.Context, address string) ([]ledger.Entry, error) {
	return m.GetLedgerFn(ctx, address)
}
func (m *MockClient) Announce(ctx context.Context, tracker string, self Info) ([]Info, error) {
	return m.AnnounceFn(ctx, tracker, self)
}
