package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skyforge/fitsflow/internal/bytesize"
)

// Default download engine tuning. These match the behavior observation
// pipelines expect for multi-gigabyte FITS transfers.
const (
	DefaultChunkSize          = 5 * bytesize.MiB
	DefaultMaxConcurrentFiles = 3
	DefaultMaxRetries         = 3
	DefaultRetryBase          = 1 * time.Second
	DefaultConnectTimeout     = 30 * time.Second
	DefaultReadTimeout        = 5 * time.Minute
)

// Default cache budgets.
const (
	DefaultTempCacheMaxBytes       = 2 * bytesize.GiB
	DefaultPreviewCacheTTL         = 10 * time.Minute
	DefaultPreviewCacheMaxEntries  = 3
	DefaultPreviewCacheMaxBytes    = 512 * bytesize.MiB
	DefaultPreviewInputPixelBudget = 100_000_000
)

// Default journal retention.
const (
	DefaultStateRetention    = 7 * 24 * time.Hour
	DefaultCompletedInMemory = 30 * time.Minute
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
	applyStorageDefaults(&cfg.Storage)
	applyDownloadDefaults(&cfg.Download)
	applyTempCacheDefaults(&cfg.TempCache)
	applyPreviewCacheDefaults(&cfg.PreviewCache)
	applyJobsDefaults(&cfg.Jobs)
	applyArchiveDefaults(&cfg.Archive)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAPIDefaults sets control-plane API server defaults.
// The API is always enabled (it is the only way to drive downloads).
func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
}

// applyStorageDefaults sets storage backend defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "local"
	}
	if cfg.Provider == "local" && cfg.Root == "" {
		cfg.Root = filepath.Join(os.TempDir(), "fitsflow-data")
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
}

// applyDownloadDefaults sets download engine defaults.
func applyDownloadDefaults(cfg *DownloadConfig) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxConcurrentFiles == 0 {
		cfg.MaxConcurrentFiles = DefaultMaxConcurrentFiles
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
}

// applyTempCacheDefaults sets temp cache defaults.
func applyTempCacheDefaults(cfg *TempCacheConfig) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "fitsflow-cache")
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultTempCacheMaxBytes
	}
}

// applyPreviewCacheDefaults sets reprojection cache defaults.
func applyPreviewCacheDefaults(cfg *PreviewCacheConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultPreviewCacheTTL
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultPreviewCacheMaxEntries
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultPreviewCacheMaxBytes
	}
	if cfg.InputPixelBudget == 0 {
		cfg.InputPixelBudget = DefaultPreviewInputPixelBudget
	}
}

// applyJobsDefaults sets journal retention defaults.
func applyJobsDefaults(cfg *JobsConfig) {
	if cfg.StateRetention == 0 {
		cfg.StateRetention = DefaultStateRetention
	}
	if cfg.CompletedInMemory == 0 {
		cfg.CompletedInMemory = DefaultCompletedInMemory
	}
}

// applyArchiveDefaults sets upstream archive defaults.
func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	// BaseURL has no default - manifest resolution requires an archive
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
