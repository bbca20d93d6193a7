package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/ledger"
)

// DefaultTimeout bounds each peer request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// HTTPClient implements Client over the JSON/HTTP node protocol.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client whose requests are each bounded by timeout.
// A non-positive timeout selects DefaultTimeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		timeout: timeout,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
	}
}

// Endpoint joins a peer address and a path. Bare host:port addresses are
// treated as plain http.
func Endpoint(address, path string) string {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return strings.TrimRight(address, "/") + path
}

// do sends req and, on a 2xx answer, hands the body to read.
func (c *HTTPClient) do(req *http.Request, read func(io.Reader) error) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrConnectionFailed, req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s %s: HTTP %d: %s", ErrStatus, req.Method, req.URL.Path,
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if read == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return read(resp.Body)
}

// call performs a JSON request and decodes the response envelope.
func (c *HTTPClient) call(ctx context.Context, method, address, path string, body interface{}) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("peer: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, Endpoint(address, path), reader)
	if err != nil {
		return nil, fmt.Errorf("peer: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var env Envelope
	err = c.do(req, func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(&env); err != nil {
			return fmt.Errorf("%w: decode %s: %w", ErrInvalidResponse, path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func decodeData(env *Envelope, path string, v interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s: missing data", ErrInvalidResponse, path)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, path, err)
	}
	return nil
}

// Ping checks that the peer answers with the ping message.
func (c *HTTPClient) Ping(ctx context.Context, address string) error {
	env, err := c.call(ctx, http.MethodGet, address, "/ping", nil)
	if err != nil {
		return err
	}
	if env.Message != MsgPing {
		return fmt.Errorf("%w: ping answered %q", ErrInvalidResponse, env.Message)
	}
	return nil
}

// GetID returns the peer's node id.
func (c *HTTPClient) GetID(ctx context.Context, address string) (string, error) {
	env, err := c.call(ctx, http.MethodGet, address, "/id", nil)
	if err != nil {
		return "", err
	}
	var id string
	if err := decodeData(env, "/id", &id); err != nil {
		return "", err
	}
	return id, nil
}

// GetPeers returns the peer's own peer table.
func (c *HTTPClient) GetPeers(ctx context.Context, address string) (map[string]string, error) {
	env, err := c.call(ctx, http.MethodGet, address, "/peers", nil)
	if err != nil {
		return nil, err
	}
	peers := make(map[string]string)
	if err := decodeData(env, "/peers", &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// AddPeer asks the peer to add info to its table.
func (c *HTTPClient) AddPeer(ctx context.Context, address string, info Info) error {
	_, err := c.call(ctx, http.MethodPost, address, "/peers", info)
	return err
}

// RemovePeer asks the peer to drop id from its table.
func (c *HTTPClient) RemovePeer(ctx context.Context, address, id string) error {
	_, err := c.call(ctx, http.MethodDelete, address, "/peers/"+url.PathEscape(id), nil)
	return err
}

// GetChain downloads the peer's full chain.
func (c *HTTPClient) GetChain(ctx context.Context, address string) ([]chain.Block, error) {
	env, err := c.call(ctx, http.MethodGet, address, "/blocks", nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: /blocks: missing data", ErrInvalidResponse)
	}
	blocks, err := chain.DecodeBlocks(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return blocks, nil
}

// SubmitBlock offers b to the peer and reports whether it was appended.
func (c *HTTPClient) SubmitBlock(ctx context.Context, address string, b chain.Block) (bool, error) {
	env, err := c.call(ctx, http.MethodPost, address, "/blocks", b)
	if err != nil {
		return false, err
	}
	switch env.Message {
	case MsgBlockAccepted:
		return true, nil
	case MsgBlockRejected:
		return false, nil
	default:
		return false, fmt.Errorf("%w: /blocks answered %q", ErrInvalidResponse, env.Message)
	}
}

// UploadChunk posts r as a multipart chunk named checksum.
func (c *HTTPClient) UploadChunk(ctx context.Context, address, checksum string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(ChunkField, checksum)
	if err != nil {
		return fmt.Errorf("peer: create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("peer: read chunk %s: %w", checksum, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("peer: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, Endpoint(address, "/file"), &body)
	if err != nil {
		return fmt.Errorf("peer: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, nil)
}

// FetchChunk streams the chunk stored under checksum into w.
func (c *HTTPClient) FetchChunk(ctx context.Context, address, checksum string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint(address, "/file/"+url.PathEscape(checksum)), nil)
	if err != nil {
		return 0, fmt.Errorf("peer: create request: %w", err)
	}

	var n int64
	err = c.do(req, func(r io.Reader) error {
		var err error
		n, err = io.Copy(w, r)
		if err != nil {
			return fmt.Errorf("%w: read chunk %s: %w", ErrConnectionFailed, checksum, err)
		}
		return nil
	})
	return n, err
}

// GetLedger downloads the peer's ledger entries.
func (c *HTTPClient) GetLedger(ctx context.Context, address string) ([]ledger.Entry, error) {
	env, err := c.call(ctx, http.MethodGet, address, "/ledger", nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: /ledger: missing data", ErrInvalidResponse)
	}
	entries, err := ledger.DecodeEntries(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return entries, nil
}

// Announce registers self with the tracker at address and returns the peers
// the tracker knows about.
func (c *HTTPClient) Announce(ctx context.Context, tracker string, self Info) ([]Info, error) {
	env, err := c.call(ctx, http.MethodPost, tracker, "/announce", self)
	if err != nil {
		return nil, err
	}
	var peers []Info
	if err := decodeData(env, "/announce", &peers); err != nil {
		return nil, err
	}
	return peers, nil
}
