package peer

import "encoding/json"

// Messages exchanged verbatim between nodes.
const (
	MsgPing          = "PING!"
	MsgBlockAccepted = "New block was successfully added"
	MsgBlockRejected = "Block was rejected"
)

// ChunkField is the multipart form field carrying an encrypted chunk. The part's
// filename is the chunk checksum.
const ChunkField = "chunk"

// Envelope is the JSON body of every node and tracker response.
type Envelope struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}
