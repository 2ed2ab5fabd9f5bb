// Package storage abstracts where FITS products live. The rest of the
// system addresses files by storage key (a relative, slash-separated path
// like "jw02733-o001/jw02733_nircam_f444w_i2d.fits") and never touches
// absolute paths directly.
//
// Two backends implement the Provider interface:
//   - local: keys resolve beneath a configured root directory
//   - s3: keys map to object keys in a bucket, reads are materialized
//     through a local temp cache
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Sentinel errors returned by providers. Callers match with errors.Is.
var (
	// ErrNotFound indicates the storage key does not exist
	ErrNotFound = errors.New("storage: key not found")

	// ErrUnsupported indicates the provider cannot perform the operation
	// (e.g. ResolveLocalPath on S3)
	ErrUnsupported = errors.New("storage: operation not supported by provider")

	// ErrInvalidKey indicates the storage key failed validation
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	// Size is the object size in bytes
	Size int64

	// ModTime is the last modification time
	ModTime time.Time
}

// Provider is the storage backend contract.
//
// All keys are validated before use; implementations may assume a key that
// reaches them has passed ValidateKey. Operations accept a context so
// remote backends can honor cancellation; the local backend ignores it for
// metadata operations.
type Provider interface {
	// Name returns the provider identifier ("local" or "s3") for logs
	// and metrics.
	Name() string

	// ReadToTemp materializes the object at key into a local file and
	// returns its path. For the local provider this is the file itself;
	// for S3 it is a temp-cache entry. Callers must treat the returned
	// file as read-only.
	//
	// Returns ErrNotFound if the key does not exist.
	ReadToTemp(ctx context.Context, key string) (string, error)

	// WriteFromPath stores the local file at srcPath under key.
	// The write is atomic: readers never observe a partial object.
	WriteFromPath(ctx context.Context, key string, srcPath string) error

	// WriteFromBytes stores data under key atomically.
	WriteFromBytes(ctx context.Context, key string, data []byte) error

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Stat returns size and modification time of the object at key.
	// Returns ErrNotFound if the key does not exist.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Delete removes the object at key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys under the given prefix, in unspecified
	// order. A missing prefix yields an empty slice.
	List(ctx context.Context, prefix string) ([]string, error)

	// Rename moves the object at oldKey to newKey. On the local
	// provider this is an atomic rename; on S3 it is copy-then-delete.
	// Returns ErrNotFound if oldKey does not exist.
	Rename(ctx context.Context, oldKey, newKey string) error

	// PresignedURL returns a time-limited direct-access URL for key,
	// or ErrUnsupported for backends without presigning (local).
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// ResolveLocalPath returns the filesystem path a key resolves to
	// without touching the file. Only the local provider supports this;
	// S3 returns ErrUnsupported. The download engine uses it to append
	// to .part files in place.
	ResolveLocalPath(key string) (string, error)
}

// keyComponentRe matches a safe key path component.
var keyComponentRe = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

// ValidateKey checks that key is a safe relative path.
//
// Rejected: empty keys, absolute paths, backslashes, empty components,
// "." and ".." components. Keys are slash-separated regardless of host OS.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrInvalidKey, key)
	}
	if strings.Contains(key, "\\") {
		return fmt.Errorf("%w: backslash in %q", ErrInvalidKey, key)
	}

	for _, part := range strings.Split(key, "/") {
		if part == "" {
			return fmt.Errorf("%w: empty component in %q", ErrInvalidKey, key)
		}
		if part == "." || part == ".." {
			return fmt.Errorf("%w: traversal component in %q", ErrInvalidKey, key)
		}
		if !keyComponentRe.MatchString(part) {
			return fmt.Errorf("%w: unsafe component %q in %q", ErrInvalidKey, part, key)
		}
	}

	return nil
}

// JoinKey joins key components with slashes and validates the result.
// Components are not cleaned, so traversal elements fail validation
// instead of being silently resolved.
func JoinKey(parts ...string) (string, error) {
	key := strings.Join(parts, "/")
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
