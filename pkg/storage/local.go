package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalProvider stores objects beneath a root directory on the local
// filesystem. Writes go through a temp file in the destination directory
// followed by an atomic rename, so readers never observe partial objects.
type LocalProvider struct {
	root string
}

// NewLocalProvider creates a local provider rooted at the given directory.
// The directory is created if it does not exist.
func NewLocalProvider(root string) (*LocalProvider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalProvider{root: abs}, nil
}

// Name returns "local".
func (p *LocalProvider) Name() string {
	return "local"
}

// Root returns the absolute storage root directory.
func (p *LocalProvider) Root() string {
	return p.root
}

// resolve validates key and maps it to an absolute path under the root.
// The containment check is defense in depth; ValidateKey already rejects
// traversal components.
func (p *LocalProvider) resolve(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	abs := filepath.Join(p.root, filepath.FromSlash(key))
	if abs != p.root && !strings.HasPrefix(abs, p.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes storage root", ErrInvalidKey, key)
	}
	return abs, nil
}

// ReadToTemp returns the path of the file backing key. No copy is made;
// the caller must treat the file as read-only.
func (p *LocalProvider) ReadToTemp(ctx context.Context, key string) (string, error) {
	abs, err := p.resolve(key)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return abs, nil
}

// WriteFromPath stores the file at srcPath under key atomically.
func (p *LocalProvider) WriteFromPath(ctx context.Context, key string, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	return p.writeFromReader(key, src)
}

// WriteFromBytes stores data under key atomically.
func (p *LocalProvider) WriteFromBytes(ctx context.Context, key string, data []byte) error {
	return p.writeFromReader(key, bytes.NewReader(data))
}

// writeFromReader streams r into a temp file next to the destination and
// renames it into place.
func (p *LocalProvider) writeFromReader(key string, r io.Reader) error {
	abs, err := p.resolve(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".write-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, abs); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key exists.
func (p *LocalProvider) Exists(ctx context.Context, key string) (bool, error) {
	abs, err := p.resolve(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return true, nil
}

// Stat returns size and modification time of the object at key.
func (p *LocalProvider) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	abs, err := p.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return ObjectInfo{}, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return ObjectInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes the object at key and prunes empty parent directories up
// to the root. Deleting a missing key is not an error.
func (p *LocalProvider) Delete(ctx context.Context, key string) error {
	abs, err := p.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	// Prune now-empty directories, stopping at the root
	dir := filepath.Dir(abs)
	for dir != p.root {
		if err := os.Remove(dir); err != nil {
			break // not empty or gone
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// List returns the keys under prefix, walking the corresponding directory.
func (p *LocalProvider) List(ctx context.Context, prefix string) ([]string, error) {
	dir := p.root
	if prefix != "" {
		abs, err := p.resolve(prefix)
		if err != nil {
			return nil, err
		}
		dir = abs
	}

	keys := []string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return keys, nil
}

// Rename atomically moves the object at oldKey to newKey.
func (p *LocalProvider) Rename(ctx context.Context, oldKey, newKey string) error {
	oldAbs, err := p.resolve(oldKey)
	if err != nil {
		return err
	}
	newAbs, err := p.resolve(newKey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(newAbs), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	if err := os.Rename(oldAbs, newAbs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, oldKey)
		}
		return fmt.Errorf("failed to rename %s to %s: %w", oldKey, newKey, err)
	}
	return nil
}

// PresignedURL is not supported by the local provider.
func (p *LocalProvider) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "", ErrUnsupported
}

// ResolveLocalPath maps key to its filesystem path without touching the
// file. The path may not exist yet; the download engine relies on this to
// create and append to .part files in place.
func (p *LocalProvider) ResolveLocalPath(key string) (string, error) {
	return p.resolve(key)
}
