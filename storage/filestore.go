package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileStore implements Store using the local filesystem.
// Files are stored at: {baseDir}/{checksum[:2]}/{checksum}
// The first two hex characters are used as a subdirectory for sharding.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a new file-based chunk store. The directory is
// created if it does not exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Dir returns the base directory.
func (fs *FileStore) Dir() string { return fs.baseDir }

// ChecksumToPath converts a checksum to its filesystem path.
func ChecksumToPath(baseDir, checksum string) string {
	return filepath.Join(baseDir, checksum[:2], checksum)
}

// ValidateChecksum checks that checksum is 64 lowercase hex characters.
func ValidateChecksum(checksum string) error {
	if len(checksum) != ChecksumLen {
		return fmt.Errorf("%w: got %d characters", ErrInvalidChecksum, len(checksum))
	}
	for i := 0; i < len(checksum); i++ {
		c := checksum[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: invalid character %q", ErrInvalidChecksum, c)
		}
	}
	return nil
}

// Path returns the full file path for checksum.
func (fs *FileStore) Path(checksum string) (string, error) {
	if err := ValidateChecksum(checksum); err != nil {
		return "", err
	}
	return ChecksumToPath(fs.baseDir, checksum), nil
}

// Put stores data under checksum.
func (fs *FileStore) Put(checksum string, data []byte) error {
	if err := ValidateChecksum(checksum); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyContent
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(fs.baseDir, checksum[:2]), 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.WriteFile(ChecksumToPath(fs.baseDir, checksum), data, 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// PutReader streams r into the store under checksum, reading at most
// maxSize bytes. Content is written to a temporary file and renamed into
// place, so readers never observe a partial chunk.
func (fs *FileStore) PutReader(checksum string, r io.Reader, maxSize int64) (int64, error) {
	if err := ValidateChecksum(checksum); err != nil {
		return 0, err
	}

	shard := filepath.Join(fs.baseDir, checksum[:2])
	if err := os.MkdirAll(shard, 0700); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	f, err := os.CreateTemp(shard, "."+checksum+".*")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmp := f.Name()

	n, err := io.Copy(f, io.LimitReader(r, maxSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	case closeErr != nil:
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, closeErr)
	case n > maxSize:
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, maxSize)
	case n == 0:
		_ = os.Remove(tmp)
		return 0, ErrEmptyContent
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := os.Rename(tmp, ChecksumToPath(fs.baseDir, checksum)); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return n, nil
}

// Get retrieves content by checksum.
func (fs *FileStore) Get(checksum string) ([]byte, error) {
	if err := ValidateChecksum(checksum); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(ChecksumToPath(fs.baseDir, checksum))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return data, nil
}

// Delete removes content by checksum.
func (fs *FileStore) Delete(checksum string) error {
	if err := ValidateChecksum(checksum); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(ChecksumToPath(fs.baseDir, checksum)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Size returns the size in bytes of stored content for checksum.
func (fs *FileStore) Size(checksum string) (int64, error) {
	if err := ValidateChecksum(checksum); err != nil {
		return 0, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	info, err := os.Stat(ChecksumToPath(fs.baseDir, checksum))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return info.Size(), nil
}

// List returns all stored checksums by scanning the shard directories.
func (fs *FileStore) List() ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	var result []string
	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(fs.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || ValidateChecksum(f.Name()) != nil {
				continue
			}
			result = append(result, f.Name())
		}
	}
	return result, nil
}
