package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func newTestProvider(t *testing.T) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvider failed: %v", err)
	}
	return p
}

func TestLocalProvider_WriteReadRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	key := "jw02733-o001/file.fits"
	data := []byte("SIMPLE  =                    T")

	if err := p.WriteFromBytes(ctx, key, data); err != nil {
		t.Fatalf("WriteFromBytes failed: %v", err)
	}

	path, err := p.ReadToTemp(ctx, key)
	if err != nil {
		t.Fatalf("ReadToTemp failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read materialized file: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Expected %q, got %q", data, got)
	}
}

func TestLocalProvider_WriteFromPath(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "staged.bin")
	if err := os.WriteFile(srcPath, []byte("payload"), 0644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}

	if err := p.WriteFromPath(ctx, "obs/staged.bin", srcPath); err != nil {
		t.Fatalf("WriteFromPath failed: %v", err)
	}

	info, err := p.Stat(ctx, "obs/staged.bin")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != int64(len("payload")) {
		t.Errorf("Expected size %d, got %d", len("payload"), info.Size)
	}
	if info.ModTime.IsZero() {
		t.Error("Expected non-zero mod time")
	}
}

func TestLocalProvider_ReadMissing(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.ReadToTemp(context.Background(), "missing.fits")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_, err = p.Stat(context.Background(), "missing.fits")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Stat, got %v", err)
	}
}

func TestLocalProvider_Exists(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	ok, err := p.Exists(ctx, "a/b.fits")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("Expected missing key to not exist")
	}

	if err := p.WriteFromBytes(ctx, "a/b.fits", []byte("x")); err != nil {
		t.Fatalf("WriteFromBytes failed: %v", err)
	}
	ok, err = p.Exists(ctx, "a/b.fits")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !ok {
		t.Error("Expected written key to exist")
	}
}

func TestLocalProvider_DeletePrunesEmptyDirs(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if err := p.WriteFromBytes(ctx, "obs/sub/file.fits", []byte("x")); err != nil {
		t.Fatalf("WriteFromBytes failed: %v", err)
	}
	if err := p.Delete(ctx, "obs/sub/file.fits"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(p.Root(), "obs")); !os.IsNotExist(err) {
		t.Error("Expected empty observation directory to be pruned")
	}

	// Deleting a missing key is not an error
	if err := p.Delete(ctx, "obs/sub/file.fits"); err != nil {
		t.Errorf("Expected idempotent delete, got %v", err)
	}
}

func TestLocalProvider_DeleteKeepsNonEmptyDirs(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if err := p.WriteFromBytes(ctx, "obs/a.fits", []byte("a")); err != nil {
		t.Fatalf("WriteFromBytes failed: %v", err)
	}
	if err := p.WriteFromBytes(ctx, "obs/b.fits", []byte("b")); err != nil {
		t.Fatalf("WriteFromBytes failed: %v", err)
	}
	if err := p.Delete(ctx, "obs/a.fits"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	ok, err := p.Exists(ctx, "obs/b.fits")
	if err != nil || !ok {
		t.Errorf("Expected sibling file to survive, ok=%v err=%v", ok, err)
	}
}

func TestLocalProvider_List(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	for _, key := range []string{"obs1/a.fits", "obs1/b.fits.part", "obs2/c.fits"} {
		if err := p.WriteFromBytes(ctx, key, []byte("x")); err != nil {
			t.Fatalf("WriteFromBytes(%s) failed: %v", key, err)
		}
	}

	keys, err := p.List(ctx, "obs1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Strings(keys)
	want := []string{"obs1/a.fits", "obs1/b.fits.part"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Expected key %q, got %q", want[i], keys[i])
		}
	}

	// Missing prefix yields an empty slice
	keys, err = p.List(ctx, "nope")
	if err != nil {
		t.Fatalf("List of missing prefix failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected empty list, got %v", keys)
	}
}

func TestLocalProvider_Rename(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if err := p.WriteFromBytes(ctx, "obs/file.fits.part", []byte("partial")); err != nil {
		t.Fatalf("WriteFromBytes failed: %v", err)
	}

	if err := p.Rename(ctx, "obs/file.fits.part", "obs/file.fits"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	ok, _ := p.Exists(ctx, "obs/file.fits.part")
	if ok {
		t.Error("Expected .part key to be gone after rename")
	}
	info, err := p.Stat(ctx, "obs/file.fits")
	if err != nil || info.Size != int64(len("partial")) {
		t.Errorf("Expected renamed file with size %d, got size=%d err=%v", len("partial"), info.Size, err)
	}

	if err := p.Rename(ctx, "obs/missing.part", "obs/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound renaming missing key, got %v", err)
	}
}

func TestLocalProvider_PresignedURLUnsupported(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.PresignedURL(context.Background(), "a.fits", 0)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestLocalProvider_ResolveLocalPath(t *testing.T) {
	p := newTestProvider(t)

	path, err := p.ResolveLocalPath("obs/file.fits.part")
	if err != nil {
		t.Fatalf("ResolveLocalPath failed: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(p.Root(), "obs") {
		t.Errorf("Expected path under root/obs, got %q", path)
	}

	if _, err := p.ResolveLocalPath("../escape"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}
