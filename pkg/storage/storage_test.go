package storage

import (
	"errors"
	"testing"
)

func TestValidateKey(t *testing.T) {
	valid := []string{
		"file.fits",
		"jw02733-o001/jw02733_nircam_f444w_i2d.fits",
		"jw02733-o001/file.fits.part",
		".download_state/a1b2c3d4e5f6.json",
		"a/b/c/d.bin",
	}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{
		"",
		"/etc/passwd",
		"../escape.fits",
		"a/../b.fits",
		"a/./b.fits",
		"a//b.fits",
		"a\\b.fits",
		"a/b*.fits",
		"sp ace.fits",
		"a/b/",
	}
	for _, key := range invalid {
		err := ValidateKey(key)
		if err == nil {
			t.Errorf("ValidateKey(%q) = nil, want error", key)
			continue
		}
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestJoinKey(t *testing.T) {
	key, err := JoinKey("jw02733-o001", "file.fits")
	if err != nil {
		t.Fatalf("JoinKey failed: %v", err)
	}
	if key != "jw02733-o001/file.fits" {
		t.Errorf("Expected 'jw02733-o001/file.fits', got %q", key)
	}

	if _, err := JoinKey("a", "..", "b"); err == nil {
		t.Error("Expected error joining traversal components")
	}
}
