package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for out-of-range API port")
	}
}

func TestValidate_InvalidStorageProvider(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Provider = "gcs"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown storage provider")
	}
}

func TestValidate_LocalProviderRequiresRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Provider = "local"
	cfg.Storage.Root = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for local provider without root")
	}
	if !strings.Contains(err.Error(), "storage.root") {
		t.Errorf("Expected 'storage.root' in error, got: %v", err)
	}
}

func TestValidate_S3ProviderRequiresBucket(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Provider = "s3"
	cfg.Storage.S3.Bucket = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for s3 provider without bucket")
	}
	if !strings.Contains(err.Error(), "storage.s3.bucket") {
		t.Errorf("Expected 'storage.s3.bucket' in error, got: %v", err)
	}
}

func TestValidate_S3CredentialsMustBePaired(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Provider = "s3"
	cfg.Storage.S3.Bucket = "fits-archive"
	cfg.Storage.S3.AccessKey = "minioadmin"
	cfg.Storage.S3.SecretKey = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for access key without secret key")
	}
}

func TestValidate_S3WithFullCredentials(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Provider = "s3"
	cfg.Storage.S3.Bucket = "fits-archive"
	cfg.Storage.S3.AccessKey = "minioadmin"
	cfg.Storage.S3.SecretKey = "minioadmin"

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid s3 config to pass validation, got: %v", err)
	}
}

func TestValidate_InvalidSampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate above 1.0")
	}
}

func TestValidate_ZeroChunkSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Download.ChunkSize = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero chunk size")
	}
}

func TestValidate_InvalidArchiveURL(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Archive.BaseURL = "not a url"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for malformed archive base URL")
	}
}
