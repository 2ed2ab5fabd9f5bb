// Package download implements the resumable chunked transfer engine: it
// moves a manifest of remote objects into storage concurrently, with
// per-file progress accounting, retry with backoff, pause/resume gates,
// and crash-safe .part bookkeeping.
package download

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/skyforge/fitsflow/internal/logger"
)

// Sentinel errors. Callers match with errors.Is.
var (
	// ErrInvalidFilename indicates a manifest filename that cannot be
	// sanitized to a safe basename
	ErrInvalidFilename = errors.New("download: invalid filename")

	// ErrInvalidLocator indicates a remote locator that is neither an
	// HTTP(S) URL nor an s3:// locator
	ErrInvalidLocator = errors.New("download: invalid remote locator")

	// ErrCancelled indicates the job was cancelled at a gate
	ErrCancelled = errors.New("download: cancelled")

	// ErrPaused indicates the engine unwound because of a pause request
	ErrPaused = errors.New("download: paused")
)

// LocatorScheme distinguishes the two supported transfer paths.
type LocatorScheme string

const (
	SchemeHTTP LocatorScheme = "http"
	SchemeS3   LocatorScheme = "s3"
)

// Locator is the parsed form of a FileSpec's remote locator: either an
// HTTP(S) URL or an s3://bucket/key object reference.
type Locator struct {
	Scheme LocatorScheme

	// URL is the full request URL for HTTP sources
	URL string

	// Bucket and Key identify the object for S3 sources
	Bucket string
	Key    string
}

// String returns the raw locator form.
func (l Locator) String() string {
	if l.Scheme == SchemeS3 {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.URL
}

// ParseLocator parses a raw remote locator string.
func ParseLocator(raw string) (Locator, error) {
	switch {
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return Locator{Scheme: SchemeHTTP, URL: raw}, nil
	case strings.HasPrefix(raw, "s3://"):
		rest := strings.TrimPrefix(raw, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Locator{}, fmt.Errorf("%w: %q", ErrInvalidLocator, raw)
		}
		return Locator{Scheme: SchemeS3, Bucket: bucket, Key: key}, nil
	default:
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalidLocator, raw)
	}
}

// FileSpec is one manifest entry.
type FileSpec struct {
	// RemoteLocator is the HTTP URL or s3:// reference to fetch
	RemoteLocator string `json:"remote_locator"`

	// Filename is the archive-proposed name; sanitized before use
	Filename string `json:"filename"`

	// ExpectedSize is the archive-reported size in bytes, 0 if unknown
	ExpectedSize int64 `json:"expected_size,omitempty"`
}

// Manifest is the ordered set of files a job downloads.
type Manifest struct {
	SourceID string     `json:"source_id"`
	Files    []FileSpec `json:"files"`
}

// Resolver turns an observation identifier into a download manifest.
// Implemented by pkg/archive against the upstream archive service.
type Resolver interface {
	Resolve(ctx context.Context, sourceID string, filters []string) (Manifest, error)
}

// safeFilenameRe is the allowed character set for sanitized basenames.
var safeFilenameRe = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

// SanitizeFilename reduces an archive-proposed filename to a safe
// basename. Names carrying path separators are accepted as their basename
// (logged at WARN); names whose basename still contains unsafe characters,
// control bytes, or is a dot entry are rejected.
func SanitizeFilename(ctx context.Context, name string) (string, error) {
	if strings.ContainsAny(name, "\x00") {
		return "", fmt.Errorf("%w: %q contains control bytes", ErrInvalidFilename, name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: %q contains control bytes", ErrInvalidFilename, name)
		}
	}

	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base != name {
		logger.WarnCtx(ctx, "manifest filename reduced to basename",
			logger.KeyFilename, name,
			"basename", base)
	}

	if base == "." || base == ".." || base == "/" || !safeFilenameRe.MatchString(base) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return base, nil
}
