// Package contentcache implements the content-addressed blob store backing
// entry bodies and embedding vectors. Blobs are keyed by their content hash,
// so writes are commutative: putting identical bytes under the same key is a
// no-op, and no locking is needed beyond an atomic rename.
package contentcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
)

// Cache is a filesystem-backed content-addressed blob store. Blobs live two
// levels deep (aa/aabb...) to keep directory fanout reasonable.
type Cache struct {
	root string
}

// New opens (creating if needed) a cache rooted at dir.
func New(dir string) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("content cache: root directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("content cache: create root: %w", err)
	}
	return &Cache{root: dir}, nil
}

// Put stores bytes under their content hash. Re-putting an existing hash is
// a no-op; the first write wins and identical content is stored exactly once
// no matter how many entries reference it.
func (c *Cache) Put(hash string, data []byte) error {
	if err := validateHash(hash); err != nil {
		return err
	}
	path := c.blobPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("content cache: stat blob: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("content cache: create shard: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("content cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("content cache: write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("content cache: close blob: %w", err)
	}
	// Rename is atomic; a concurrent Put of the same hash leaves identical
	// bytes in place either way.
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("content cache: commit blob: %w", err)
	}
	return nil
}

// Get returns the bytes stored under hash, or services.ErrNotFound.
func (c *Cache) Get(hash string) ([]byte, error) {
	if err := validateHash(hash); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.blobPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: content blob %s", services.ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("content cache: read blob: %w", err)
	}
	return data, nil
}

// Has reports whether a blob exists for hash without reading it.
func (c *Cache) Has(hash string) (bool, error) {
	if err := validateHash(hash); err != nil {
		return false, err
	}
	_, err := os.Stat(c.blobPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("content cache: stat blob: %w", err)
	}
	return true, nil
}

// Delete removes the blob for hash. Deleting a missing blob is a no-op.
func (c *Cache) Delete(hash string) error {
	if err := validateHash(hash); err != nil {
		return err
	}
	err := os.Remove(c.blobPath(hash))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("content cache: delete blob: %w", err)
	}
	return nil
}

// SweepResult summarizes a garbage collection pass.
type SweepResult struct {
	Scanned int
	Removed int
	Kept    int
}

// Sweep removes blobs whose hash is absent from the live set and whose
// modification time predates the grace window. The grace window protects
// blobs written by an ingestion that has not yet committed its entry rows.
func (c *Cache) Sweep(live map[string]struct{}, grace time.Duration) (SweepResult, error) {
	var result SweepResult
	cutoff := time.Now().Add(-grace)

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		result.Scanned++
		hash := d.Name()
		if _, ok := live[hash]; ok {
			result.Kept++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			result.Kept++
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		result.Removed++
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("content cache: sweep: %w", err)
	}
	return result, nil
}

func (c *Cache) blobPath(hash string) string {
	return filepath.Join(c.root, hash[:2], hash)
}

func validateHash(hash string) error {
	if len(hash) != 16 {
		return fmt.Errorf("content cache: invalid hash %q", hash)
	}
	for _, r := range hash {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("content cache: invalid hash %q", hash)
		}
	}
	return nil
}
