package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/node"
	"github.com/bitfsorg/blockfs-go/peer"
	"github.com/bitfsorg/blockfs-go/state"
)

const testChunkSize = 4096

type testNode struct {
	node *node.Node
	srv  *httptest.Server
}

// startNode runs a node behind an httptest server using the real HTTP client.
func startNode(t *testing.T) *testNode {
	t.Helper()
	n, err := node.Open(node.Options{
		DataDir:     t.TempDir(),
		Store:       state.NewMemStore(),
		ChunkSize:   testChunkSize,
		PeerTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(n))
	t.Cleanup(func() {
		srv.Close()
		_ = n.Close()
	})
	return &testNode{node: n, srv: srv}
}

func (tn *testNode) info() peer.Info {
	return peer.Info{ID: tn.node.ID(), Address: tn.srv.URL}
}

func doJSON(t *testing.T, method, url string, body interface{}) (int, peer.Envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env peer.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestPingAndID(t *testing.T) {
	tn := startNode(t)

	status, env := doJSON(t, http.MethodGet, tn.srv.URL+"/ping", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, peer.MsgPing, env.Message)

	status, env = doJSON(t, http.MethodGet, tn.srv.URL+"/id", nil)
	assert.Equal(t, http.StatusOK, status)
	var id string
	require.NoError(t, json.Unmarshal(env.Data, &id))
	assert.Equal(t, tn.node.ID(), id)
}

func TestPeerRoutes(t *testing.T) {
	tn := startNode(t)

	status, env := doJSON(t, http.MethodPost, tn.srv.URL+"/peers", peer.Info{ID: "a", Address: "10.0.0.1:3000"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Peer [a] at [10.0.0.1:3000] added", env.Message)

	status, _ = doJSON(t, http.MethodPost, tn.srv.URL+"/peers", peer.Info{ID: tn.node.ID(), Address: "x:1"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, http.MethodPost, tn.srv.URL+"/peers", "not an object")
	assert.Equal(t, http.StatusBadRequest, status)

	_, env = doJSON(t, http.MethodGet, tn.srv.URL+"/peers", nil)
	var peers map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &peers))
	assert.Equal(t, map[string]string{"a": "10.0.0.1:3000"}, peers)

	status, _ = doJSON(t, http.MethodDelete, tn.srv.URL+"/peers/a", nil)
	assert.Equal(t, http.StatusOK, status)
	status, env = doJSON(t, http.MethodDelete, tn.srv.URL+"/peers/a", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, env.Error)
}

func TestBlockRoutes(t *testing.T) {
	tn := startNode(t)

	_, env := doJSON(t, http.MethodGet, tn.srv.URL+"/blocks", nil)
	blocks, err := chain.DecodeBlocks(env.Data)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.True(t, blocks[0].IsGenesis())

	genesis := chain.Genesis()
	chunks := []chain.FileChunk{{Index: 0, Checksum: chain.HashHex([]byte("x")), Location: "p", Size: 10}}
	proof, err := chain.Mine(context.Background(), genesis.Hash(), chunks)
	require.NoError(t, err)
	valid := chain.NewBlock(1, genesis.Hash(), chunks, proof)

	status, env := doJSON(t, http.MethodPost, tn.srv.URL+"/blocks", valid)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, peer.MsgBlockAccepted, env.Message)
	assert.Equal(t, 2, tn.node.Chain().Len())

	invalid := valid
	for invalid.IsValid() {
		invalid.Proof++
	}
	status, env = doJSON(t, http.MethodPost, tn.srv.URL+"/blocks", invalid)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, peer.MsgBlockRejected, env.Message)
	assert.Equal(t, 2, tn.node.Chain().Len())

	req, err := http.NewRequest(http.MethodPost, tn.srv.URL+"/blocks", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChunkRoutes(t *testing.T) {
	tn := startNode(t)
	data := []byte("encrypted bytes")
	checksum := chain.HashHex([]byte("plain bytes"))

	body, ctype := multipartBody(t, peer.ChunkField, checksum, data)
	resp, err := http.Post(tn.srv.URL+"/file", ctype, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(tn.srv.URL + "/file/" + checksum)
	require.NoError(t, err)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), resp.ContentLength)

	status, _ := doJSON(t, http.MethodGet, tn.srv.URL+"/file/"+chain.HashHex([]byte("other")), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, http.MethodGet, tn.srv.URL+"/file/nothex", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	body, ctype = multipartBody(t, peer.ChunkField, "bad-name", data)
	resp, err = http.Post(tn.srv.URL+"/file", ctype, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ctype = multipartBody(t, peer.ChunkField, checksum, nil)
	resp, err = http.Post(tn.srv.URL+"/file", ctype, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ctype = multipartBody(t, "wrong", checksum, data)
	resp, err = http.Post(tn.srv.URL+"/file", ctype, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_NoPeers(t *testing.T) {
	tn := startNode(t)
	body, ctype := multipartBody(t, FileField, "a.txt", []byte("hello"))

	resp, err := http.Post(tn.srv.URL+"/upload", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env peer.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, msgNoPeers, env.Error)
	assert.Equal(t, 1, tn.node.Chain().Len())
}

func TestUnknownRoute(t *testing.T) {
	tn := startNode(t)
	status, env := doJSON(t, http.MethodGet, tn.srv.URL+"/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, env.Error)

	status, _ = doJSON(t, http.MethodPut, tn.srv.URL+"/ping", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestDownload_BadIndex(t *testing.T) {
	tn := startNode(t)
	status, _ := doJSON(t, http.MethodGet, tn.srv.URL+"/download/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = doJSON(t, http.MethodGet, tn.srv.URL+"/download/0", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

// TestUploadDownload_ThreeNodes runs the full flow across real HTTP servers:
// upload on one node, chunks land on its peers, the block reaches every
// chain, and the file downloads back intact.
func TestUploadDownload_ThreeNodes(t *testing.T) {
	origin := startNode(t)
	holderA := startNode(t)
	holderB := startNode(t)
	for _, h := range []*testNode{holderA, holderB} {
		require.NoError(t, origin.node.AddPeer(h.info()))
		require.NoError(t, h.node.AddPeer(origin.info()))
	}

	content := make([]byte, 10000)
	_, err := rand.Read(content)
	require.NoError(t, err)

	body, ctype := multipartBody(t, FileField, "report.bin", content)
	resp, err := http.Post(origin.srv.URL+"/upload", ctype, body)
	require.NoError(t, err)
	var env peer.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)
	assert.Equal(t, msgUploaded, env.Message)

	var b chain.Block
	require.NoError(t, json.Unmarshal(env.Data, &b))
	require.Len(t, b.FileChunks, 3)

	origin.node.Wait()
	for _, tn := range []*testNode{origin, holderA, holderB} {
		assert.Equal(t, 2, tn.node.Chain().Len())
		assert.Equal(t, b.Hash(), tn.node.Chain().Tip().Hash())
	}

	_, env = doJSON(t, http.MethodGet, origin.srv.URL+"/ledger", nil)
	var doc struct {
		Entries []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Size int64  `json:"size"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "report.bin", doc.Entries[0].Name)
	assert.Equal(t, int64(10000), doc.Entries[0].Size)

	resp, err = http.Get(origin.srv.URL + "/download/0")
	require.NoError(t, err)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, content, got)

	status, _ := doJSON(t, http.MethodDelete, origin.srv.URL+"/ledger/"+doc.Entries[0].ID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, origin.node.Ledger().Len())
	status, _ = doJSON(t, http.MethodDelete, origin.srv.URL+"/ledger/"+doc.Entries[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
