package storage

// DefaultChunkSize is the default chunk size for content splitting (1MB).
const DefaultChunkSize = 1 << 20

// SplitIntoChunks splits data into fixed-size chunks.
// The last chunk may be smaller than chunkSize.
// Returns an error if chunkSize is not positive.
func SplitIntoChunks(data []byte, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if len(data) == 0 {
		return nil, nil
	}
	chunks := make([][]byte, 0, ChunkCount(int64(len(data)), chunkSize))
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-i)
		copy(chunk, data[i:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// ChunkCount returns ceil(size / chunkSize).
func ChunkCount(size int64, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}
