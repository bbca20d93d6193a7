// Package api serves the node-to-node and user HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"

	"github.com/bitfsorg/blockfs-go/chain"
	"github.com/bitfsorg/blockfs-go/ledger"
	"github.com/bitfsorg/blockfs-go/node"
	"github.com/bitfsorg/blockfs-go/peer"
	"github.com/bitfsorg/blockfs-go/storage"
)

var log = logging.Logger("api")

const (
	// FileField is the multipart field carrying a user upload.
	FileField = "file"

	// MaxUploadSize bounds a single user upload.
	MaxUploadSize = 1 << 30

	// maxJSONBody bounds JSON request bodies (blocks and peer records).
	maxJSONBody = 32 << 20

	// multipartMemory is how much of a multipart body is buffered in memory.
	multipartMemory = 8 << 20
)

// Messages returned to upload clients.
const (
	msgNoPeers      = "There are no peers to upload to"
	msgUploadFailed = "There was an error uploading the file"
	msgUploaded     = "File uploaded successfully"
)

type handler struct {
	node *node.Node
}

// NewRouter returns a router serving every route for n.
func NewRouter(n *node.Node) *mux.Router {
	r := mux.NewRouter()
	Routes(r, n)
	return r
}

// Routes registers the node routes on r.
func Routes(r *mux.Router, n *node.Node) {
	h := &handler{node: n}

	r.Use(recoverer, requestLogger)

	r.Methods("GET").Path("/ping").HandlerFunc(h.ping)
	r.Methods("GET").Path("/id").HandlerFunc(h.id)

	r.Methods("GET").Path("/peers").HandlerFunc(h.getPeers)
	r.Methods("POST").Path("/peers").HandlerFunc(h.addPeer)
	r.Methods("DELETE").Path("/peers/{id}").HandlerFunc(h.removePeer)

	r.Methods("GET").Path("/blocks").HandlerFunc(h.getBlocks)
	r.Methods("POST").Path("/blocks").HandlerFunc(h.submitBlock)

	r.Methods("POST").Path("/file").HandlerFunc(h.storeChunk)
	r.Methods("GET").Path("/file/{hash}").HandlerFunc(h.getChunk)

	r.Methods("GET").Path("/ledger").HandlerFunc(h.getLedger)
	r.Methods("DELETE").Path("/ledger/{id}").HandlerFunc(h.removeEntry)

	r.Methods("GET").Path("/download/{index}").HandlerFunc(h.download)
	r.Methods("POST").Path("/upload").HandlerFunc(h.upload)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, env peer.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Debugw("write response", "err", err)
	}
}

func writeData(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, peer.Envelope{Data: data})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, peer.Envelope{Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, peer.Envelope{Error: msg})
}

func decodeBody(r *http.Request, w http.ResponseWriter, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Errorw("handler panic", "method", r.Method, "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugw("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "elapsed", time.Since(start))
	})
}

// ---------------------------------------------------------------------------
// Identity & peers
// ---------------------------------------------------------------------------

func (h *handler) ping(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, peer.MsgPing)
}

func (h *handler) id(w http.ResponseWriter, _ *http.Request) {
	writeData(w, h.node.ID())
}

func (h *handler) getPeers(w http.ResponseWriter, _ *http.Request) {
	writeData(w, h.node.Peers().Snapshot())
}

func (h *handler) addPeer(w http.ResponseWriter, r *http.Request) {
	var info peer.Info
	if err := decodeBody(r, w, &info); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.node.AddPeer(info); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("Peer [%s] at [%s] added", info.ID, info.Address))
}

func (h *handler) removePeer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.node.RemovePeer(id); err != nil {
		if errors.Is(err, peer.ErrPeerNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("Peer [%s] removed", id))
}

// ---------------------------------------------------------------------------
// Chain
// ---------------------------------------------------------------------------

func (h *handler) getBlocks(w http.ResponseWriter, _ *http.Request) {
	writeData(w, h.node.Chain())
}

func (h *handler) submitBlock(w http.ResponseWriter, r *http.Request) {
	var b chain.Block
	if err := decodeBody(r, w, &b); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	accepted, err := h.node.SubmitBlock(r.Context(), b)
	if err != nil {
		log.Warnw("conflict resolution failed", "index", b.Index, "err", err)
	}
	if accepted {
		writeMessage(w, http.StatusOK, peer.MsgBlockAccepted)
		return
	}
	writeMessage(w, http.StatusOK, peer.MsgBlockRejected)
}

// ---------------------------------------------------------------------------
// Chunks
// ---------------------------------------------------------------------------

func (h *handler) storeChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, node.MaxHostedChunk+multipartMemory)
	f, hdr, err := r.FormFile(peer.ChunkField)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %q part: %v", peer.ChunkField, err))
		return
	}
	defer f.Close()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	checksum := filepath.Base(hdr.Filename)
	if _, err := h.node.StoreChunk(checksum, f); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidChecksum), errors.Is(err, storage.ErrEmptyContent):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			log.Errorw("could not store chunk", "checksum", checksum, "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("Chunk [%s] stored", checksum))
}

func (h *handler) getChunk(w http.ResponseWriter, r *http.Request) {
	rc, size, err := h.node.OpenChunk(mux.Vars(r)["hash"])
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, storage.ErrInvalidChecksum):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		log.Debugw("chunk transfer interrupted", "err", err)
	}
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

func (h *handler) getLedger(w http.ResponseWriter, _ *http.Request) {
	writeData(w, h.node.Ledger())
}

func (h *handler) removeEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.node.RemoveEntry(id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("Entry [%s] removed", id))
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	path, err := h.node.Download(r.Context(), index)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, node.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, node.ErrCorrupt):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			log.Errorw("download failed", "index", index, "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.node.Peers().Len() == 0 {
		writeError(w, http.StatusUnprocessableEntity, msgNoPeers)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, hdr, err := r.FormFile(FileField)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %q part: %v", FileField, err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.node.UploadData(r.Context(), filepath.Base(hdr.Filename), data)
	if err != nil {
		if errors.Is(err, node.ErrNoPeers) {
			writeError(w, http.StatusUnprocessableEntity, msgNoPeers)
			return
		}
		log.Errorw("upload failed", "name", hdr.Filename, "err", err)
		writeError(w, http.StatusUnprocessableEntity, msgUploadFailed)
		return
	}

	data, err = json.Marshal(b)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, peer.Envelope{Data: data, Message: msgUploaded})
}
