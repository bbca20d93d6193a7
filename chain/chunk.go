package chain

// FileChunk describes one stored piece of a file: its position in the
// original file, the checksum of its plaintext, the peer holding it and the
// number of bytes the peer stores (ciphertext size).
//
// The JSON field names are part of the wire contract: proof hashes are
// computed over this encoding.
type FileChunk struct {
	Index    int    `json:"index"`
	Checksum string `json:"checksum"`
	Location string `json:"location"`
	Size     int    `json:"size"`
}

// cloneChunks returns an independent copy of chunks, never nil.
func cloneChunks(chunks []FileChunk) []FileChunk {
	out := make([]FileChunk, len(chunks))
	copy(out, chunks)
	return out
}
