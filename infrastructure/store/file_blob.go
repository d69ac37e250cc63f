package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ahrav/go-leaderboard/internal/ports"
)

var _ ports.BlobStore = (*FileBlobStore)(nil)

// Advisory lock timings for FileBlobStore.
const (
	// DefaultLockTimeout bounds how long a write waits for another
	// process's lock before failing with ports.ErrStoreUnavailable.
	DefaultLockTimeout = 5 * time.Second
	// DefaultStaleLockAge is the age after which a lock file left by a
	// crashed process is removed.
	DefaultStaleLockAge = 30 * time.Second

	lockPollInterval = 5 * time.Millisecond
)

// FileBlobStore keeps each blob as a file under a root directory. The
// version of a blob is the SHA-256 of its contents. Writes go to a
// temporary file that is renamed into place, so readers never see a partial
// document.
//
// Writers and deletes hold an advisory lock file next to the blob from the
// version check to the rename, so processes sharing the directory cannot
// interleave a check with another process's write. Reads take no lock.
type FileBlobStore struct {
	root string
	mu   sync.Mutex

	lockTimeout  time.Duration
	staleLockAge time.Duration
}

// NewFileBlobStore creates the root directory if needed and returns a store
// rooted there.
func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileBlobStore{
		root:         root,
		lockTimeout:  DefaultLockTimeout,
		staleLockAge: DefaultStaleLockAge,
	}, nil
}

// Get implements ports.BlobStore.
func (f *FileBlobStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path, err := f.path(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ports.ErrBlobNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	return data, contentVersion(data), nil
}

// Put implements ports.BlobStore.
func (f *FileBlobStore) Put(ctx context.Context, key string, data []byte, ifVersion string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := f.path(key)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock(ctx, path)
	if err != nil {
		return "", err
	}
	defer unlock()

	current := ""
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		current = contentVersion(existing)
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	if current != ifVersion {
		return "", ports.ErrVersionConflict
	}

	tmp, err := os.CreateTemp(f.root, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	return contentVersion(data), nil
}

// Delete implements ports.BlobStore.
func (f *FileBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	return nil
}

// path maps key to a file inside root, rejecting keys that would escape it.
func (f *FileBlobStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if key == "" || clean != filepath.Base(clean) || clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(f.root, clean), nil
}

func lockPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".lock")
}

// lock creates the advisory lock file for path, waiting while another
// process holds it. A lock older than staleLockAge is taken over.
func (f *FileBlobStore) lock(ctx context.Context, path string) (func(), error) {
	name := lockPath(path)
	deadline := time.Now().Add(f.lockTimeout)
	for {
		lf, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			lf.Close()
			return func() { os.Remove(name) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
		}

		if info, statErr := os.Stat(name); statErr == nil && time.Since(info.ModTime()) > f.staleLockAge {
			if rmErr := os.Remove(name); rmErr == nil || errors.Is(rmErr, os.ErrNotExist) {
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s is locked by another writer", ports.ErrStoreUnavailable, filepath.Base(path))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
