package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors.
//
// Struct tags handle field-level constraints (oneof, ranges). Cross-field
// rules that tags cannot express are checked explicitly:
//   - local provider requires storage.root
//   - s3 provider requires storage.s3.bucket
//   - static S3 credentials must be given as a pair
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.Storage.Provider {
	case "local":
		if cfg.Storage.Root == "" {
			return fmt.Errorf("storage.root is required for the local provider")
		}
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 provider")
		}
		if (cfg.Storage.S3.AccessKey == "") != (cfg.Storage.S3.SecretKey == "") {
			return fmt.Errorf("storage.s3.access_key and storage.s3.secret_key must be set together")
		}
	}

	if cfg.Download.ChunkSize == 0 {
		return fmt.Errorf("download.chunk_size must be greater than zero")
	}

	if cfg.TempCache.MaxBytes == 0 {
		return fmt.Errorf("temp_cache.max_bytes must be greater than zero")
	}

	return nil
}
