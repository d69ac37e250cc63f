package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/ahrav/go-leaderboard/internal/ports"
)

var _ ports.BlobStore = (*MemoryBlobStore)(nil)

// MemoryBlobStore is an in-process BlobStore. Versions are a per-key
// write counter. Data is copied on the way in and out.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
	seq   uint64
}

type memoryBlob struct {
	data    []byte
	version string
}

// NewMemoryBlobStore creates an empty store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]memoryBlob)}
}

// Get implements ports.BlobStore.
func (m *MemoryBlobStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[key]
	if !ok {
		return nil, "", ports.ErrBlobNotFound
	}
	return append([]byte(nil), b.data...), b.version, nil
}

// Put implements ports.BlobStore.
func (m *MemoryBlobStore) Put(ctx context.Context, key string, data []byte, ifVersion string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blobs[key].version != ifVersion {
		return "", ports.ErrVersionConflict
	}
	m.seq++
	version := strconv.FormatUint(m.seq, 10)
	m.blobs[key] = memoryBlob{data: append([]byte(nil), data...), version: version}
	return version, nil
}

// Delete implements ports.BlobStore.
func (m *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, key)
	return nil
}
