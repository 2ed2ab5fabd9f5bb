package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/skyforge/fitsflow/pkg/storage"
)

// partFile manages the in-progress partial of one file transfer. On a
// local provider it appends directly to the resolved `.part` path so the
// journal's crash reconciliation sees the partial without any extra
// bookkeeping. On providers without local paths (S3 storage) it appends
// to a spool file and stashes the partial as a `.part` object on pause or
// failure so resume offsets survive.
type partFile struct {
	provider storage.Provider
	finalKey string
	partKey  string

	path    string
	spooled bool
	size    int64
	f       *os.File
}

// openPart prepares the partial for finalKey, recovering any existing
// resume offset. spoolDir is used only when the provider cannot resolve
// local paths.
func openPart(ctx context.Context, provider storage.Provider, finalKey, spoolDir string) (*partFile, error) {
	pf := &partFile{
		provider: provider,
		finalKey: finalKey,
		partKey:  finalKey + ".part",
	}

	if path, err := provider.ResolveLocalPath(pf.partKey); err == nil {
		pf.path = path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create part directory: %w", err)
		}
	} else if errors.Is(err, storage.ErrUnsupported) {
		pf.spooled = true
		pf.path = filepath.Join(spoolDir, strings.ReplaceAll(pf.partKey, "/", "_"))
		if err := os.MkdirAll(spoolDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create spool directory: %w", err)
		}
		if err := pf.materializeSpool(ctx); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	f, err := os.OpenFile(pf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open part file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat part file: %w", err)
	}
	pf.f = f
	pf.size = info.Size()
	return pf, nil
}

// materializeSpool pulls a previously stashed `.part` object into the
// spool file so a spooled transfer can resume from its recorded offset.
func (pf *partFile) materializeSpool(ctx context.Context) error {
	if _, err := os.Stat(pf.path); err == nil {
		return nil
	}

	src, err := pf.provider.ReadToTemp(ctx, pf.partKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to materialize stashed partial: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open stashed partial: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(pf.path)
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy stashed partial: %w", err)
	}
	return out.Close()
}

// Size returns the confirmed resume offset.
func (pf *partFile) Size() int64 {
	return pf.size
}

// Append writes a chunk at the current end of the partial.
func (pf *partFile) Append(data []byte) error {
	n, err := pf.f.Write(data)
	pf.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to append chunk: %w", err)
	}
	return nil
}

// Truncate discards the partial's content, resetting the offset to zero.
func (pf *partFile) Truncate() error {
	if err := pf.f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate part file: %w", err)
	}
	if _, err := pf.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind part file: %w", err)
	}
	pf.size = 0
	return nil
}

// Commit promotes the completed partial to the final key and removes any
// stashed `.part` object.
func (pf *partFile) Commit(ctx context.Context) error {
	if err := pf.f.Close(); err != nil {
		return fmt.Errorf("failed to close part file: %w", err)
	}
	pf.f = nil

	if pf.spooled {
		if err := pf.provider.WriteFromPath(ctx, pf.finalKey, pf.path); err != nil {
			return err
		}
		_ = os.Remove(pf.path)
		if err := pf.provider.Delete(ctx, pf.partKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return nil
	}
	return pf.provider.Rename(ctx, pf.partKey, pf.finalKey)
}

// Stash closes the partial, preserving the resume offset. Spooled
// partials are uploaded as a `.part` object so reconciliation and a later
// resume can see them.
func (pf *partFile) Stash(ctx context.Context) error {
	if pf.f != nil {
		if err := pf.f.Close(); err != nil {
			return fmt.Errorf("failed to close part file: %w", err)
		}
		pf.f = nil
	}

	if pf.spooled && pf.size > 0 {
		if err := pf.provider.WriteFromPath(ctx, pf.partKey, pf.path); err != nil {
			return err
		}
		_ = os.Remove(pf.path)
	}
	return nil
}

// Discard removes the partial entirely, local and stashed.
func (pf *partFile) Discard(ctx context.Context) {
	if pf.f != nil {
		_ = pf.f.Close()
		pf.f = nil
	}
	if pf.spooled {
		_ = os.Remove(pf.path)
	}
	_ = pf.provider.Delete(ctx, pf.partKey)
}
