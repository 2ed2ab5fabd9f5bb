package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/skyforge/fitsflow/internal/bytesize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the FitsFlow configuration.
//
// This structure captures the static configuration of the FitsFlow server:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Control-plane API server settings
//   - Storage backend (local filesystem or S3)
//   - Download engine tuning (chunking, retries, timeouts)
//   - Temp cache and preview cache budgets
//   - Job journal retention
//   - Upstream archive endpoint
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FITSFLOW_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains control-plane API server configuration
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Storage selects and configures the storage backend
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Download tunes the download engine
	Download DownloadConfig `mapstructure:"download" yaml:"download"`

	// TempCache configures the local materialization cache used when the
	// storage backend is remote (S3)
	TempCache TempCacheConfig `mapstructure:"temp_cache" yaml:"temp_cache"`

	// PreviewCache configures the in-memory reprojection result cache
	PreviewCache PreviewCacheConfig `mapstructure:"preview_cache" yaml:"preview_cache"`

	// Jobs configures journal retention and in-memory job pruning
	Jobs JobsConfig `mapstructure:"jobs" yaml:"jobs"`

	// Archive configures the upstream observation archive endpoint
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// APIConfig configures the control-plane HTTP API server.
type APIConfig struct {
	// Host is the listen address
	// Default: "0.0.0.0"
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP port for the control-plane API
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading a request
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes
	// Default: 30s (preview rendering can take a while)
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RequestTimeout is the per-request middleware timeout
	// Default: 60s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// StorageConfig selects and configures the storage backend.
//
// Provider "local" roots all storage keys beneath Root on the local
// filesystem. Provider "s3" stores objects in the configured bucket and
// materializes reads through the temp cache.
type StorageConfig struct {
	// Provider selects the storage backend
	// Valid values: local, s3
	Provider string `mapstructure:"provider" validate:"required,oneof=local s3" yaml:"provider"`

	// Root is the filesystem directory all keys resolve beneath.
	// Required for the local provider.
	Root string `mapstructure:"root" yaml:"root,omitempty"`

	// S3 contains S3 connection settings (used when Provider is "s3")
	S3 S3Config `mapstructure:"s3" yaml:"s3,omitempty"`
}

// S3Config contains S3 connection settings.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Endpoint is the S3 endpoint URL (empty for AWS)
	// Example: "http://minio:9000"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// PublicEndpoint, when set, replaces Endpoint in presigned URLs so
	// that clients outside the service network can reach them
	PublicEndpoint string `mapstructure:"public_endpoint" yaml:"public_endpoint,omitempty"`

	// AccessKey is the static access key ID (empty uses the default
	// AWS credential chain)
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`

	// SecretKey is the static secret access key
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`

	// Region is the S3 region
	// Default: "us-east-1"
	Region string `mapstructure:"region" yaml:"region"`

	// ForcePathStyle enables path-style addressing (required for MinIO)
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// DownloadConfig tunes the download engine.
type DownloadConfig struct {
	// ChunkSize is the streaming chunk size for HTTP transfers
	// Supports human-readable formats: "5MiB", "1MB"
	// Default: 5MiB
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`

	// MaxConcurrentFiles caps simultaneous in-flight file transfers per job
	// Default: 3
	MaxConcurrentFiles int `mapstructure:"max_concurrent_files" validate:"omitempty,min=1" yaml:"max_concurrent_files"`

	// MaxRetries is the per-file retry budget for transient failures
	// Default: 3
	MaxRetries int `mapstructure:"max_retries" validate:"omitempty,min=0" yaml:"max_retries"`

	// RetryBase is the base delay for exponential backoff between retries.
	// Attempt n waits RetryBase * 2^(n-1).
	// Default: 1s
	RetryBase time.Duration `mapstructure:"retry_base" yaml:"retry_base"`

	// ConnectTimeout bounds connection establishment
	// Default: 30s
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// ReadTimeout bounds each chunk read (large chunks over slow links)
	// Default: 5m
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// TempCacheConfig configures the local materialization cache.
type TempCacheConfig struct {
	// Dir is the cache directory. Storage keys keep their structure
	// beneath it.
	// Default: os.TempDir()/fitsflow-cache
	Dir string `mapstructure:"dir" yaml:"dir"`

	// MaxBytes is the cache byte budget. Least-recently-accessed files
	// are evicted when the budget would be exceeded.
	// Default: 2GiB
	MaxBytes bytesize.ByteSize `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// PreviewCacheConfig configures the in-memory reprojection result cache.
type PreviewCacheConfig struct {
	// TTL is how long a cached reprojection result stays valid
	// Default: 10m
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// MaxEntries caps the number of cached results
	// Default: 3
	MaxEntries int `mapstructure:"max_entries" validate:"omitempty,min=1" yaml:"max_entries"`

	// MaxBytes caps total cached plane bytes
	// Default: 512MiB
	MaxBytes bytesize.ByteSize `mapstructure:"max_bytes" yaml:"max_bytes"`

	// InputPixelBudget caps the per-request reprojection input size.
	// Requests exceeding it are rejected with 413.
	// Default: 100_000_000 pixels
	InputPixelBudget int64 `mapstructure:"input_pixel_budget" validate:"omitempty,min=1" yaml:"input_pixel_budget"`
}

// JobsConfig configures journal retention and in-memory job pruning.
type JobsConfig struct {
	// StateRetention is how long terminal journal entries and orphaned
	// .part files are kept before housekeeping removes them
	// Default: 168h (7 days)
	StateRetention time.Duration `mapstructure:"state_retention" yaml:"state_retention"`

	// CompletedInMemory is how long completed jobs stay in the in-memory
	// registry before pruning
	// Default: 30m
	CompletedInMemory time.Duration `mapstructure:"completed_in_memory" yaml:"completed_in_memory"`
}

// ArchiveConfig configures the upstream observation archive.
type ArchiveConfig struct {
	// BaseURL is the archive API base URL used to resolve observation
	// manifests
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url" yaml:"base_url"`

	// RequestTimeout bounds each archive request
	// Default: 30s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FITSFLOW_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  fitsflow init\n\n"+
				"Or specify a custom config file:\n"+
				"  fitsflow <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  fitsflow init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions because the config may carry S3 credentials
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FITSFLOW_ prefix and underscores
	// Example: FITSFLOW_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FITSFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/fitsflow/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "5MiB", "2Gi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fitsflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "fitsflow")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
