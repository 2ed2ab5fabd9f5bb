package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/internal/telemetry"
	"github.com/skyforge/fitsflow/pkg/api"
	"github.com/skyforge/fitsflow/pkg/archive"
	"github.com/skyforge/fitsflow/pkg/config"
	"github.com/skyforge/fitsflow/pkg/download"
	"github.com/skyforge/fitsflow/pkg/jobs"
	"github.com/skyforge/fitsflow/pkg/metrics"
	"github.com/skyforge/fitsflow/pkg/previewcache"
	"github.com/skyforge/fitsflow/pkg/render"
	"github.com/skyforge/fitsflow/pkg/storage"
	s3storage "github.com/skyforge/fitsflow/pkg/storage/s3"
	"github.com/skyforge/fitsflow/pkg/storage/tempcache"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// defaultPreviewBudget is the input pixel budget applied when a preview
// request does not name one.
const defaultPreviewBudget = 1_000_000

const usage = `FitsFlow - JWST imagery ingestion service

Usage:
  fitsflow <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the FitsFlow server
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/fitsflow/config.yaml)
  --force            Force overwrite existing config file (init command only)

Examples:
  # Initialize config file
  fitsflow init

  # Start server with default config location
  fitsflow start

  # Start server with custom config
  fitsflow start --config /etc/fitsflow/config.yaml

  # Use environment variables to override config
  FITSFLOW_LOGGING_LEVEL=DEBUG fitsflow start

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: FITSFLOW_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    FITSFLOW_LOGGING_LEVEL=DEBUG
    FITSFLOW_STORAGE_PROVIDER=s3
    FITSFLOW_DOWNLOAD_MAX_CONCURRENT_FILES=5
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("fitsflow %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// runInit handles the init subcommand
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/fitsflow/config.yaml)")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	configPath := *configFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if !*force {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(os.Stderr, "Error: Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(os.Stderr, "Use --force to overwrite it.")
			os.Exit(1)
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: fitsflow start")
	fmt.Printf("  3. Or specify custom config: fitsflow start --config %s\n", configPath)
}

// runStart handles the start subcommand
func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/fitsflow/config.yaml)")

	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the structured logger
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "fitsflow",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "fitsflow",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		log.Fatalf("Failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("FitsFlow starting", "version", version)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	// Initialize metrics FIRST so the prometheus-backed instrumentation
	// constructors see an enabled registry
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Storage provider, plus the S3 client when configured (used both as
	// the storage backend and as the manifest s3:// source)
	provider, s3Client, err := buildProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	logger.Info("Storage initialized", logger.KeyProvider, provider.Name())

	// Job journal and registry; reconcile journal state against disk
	journal := jobs.NewJournal(provider, cfg.Jobs.StateRetention)
	registry := jobs.NewRegistry(journal, provider, cfg.Jobs.CompletedInMemory)
	journal.Housekeep(ctx, registry.ActiveIDs())

	resumable, err := registry.ListResumable(ctx)
	if err != nil {
		logger.Warn("resumable scan failed", logger.KeyError, err)
	} else if len(resumable) > 0 {
		logger.Info("Resumable jobs found", "count", len(resumable))
	}

	// Upstream archive client
	if cfg.Archive.BaseURL == "" {
		log.Fatalf("archive.base_url is required")
	}
	archiveClient := archive.New(cfg.Archive.BaseURL, cfg.Archive.RequestTimeout)

	// Download service
	engineCfg := download.Config{
		ChunkSize:          int64(cfg.Download.ChunkSize),
		MaxConcurrentFiles: cfg.Download.MaxConcurrentFiles,
		MaxRetries:         cfg.Download.MaxRetries,
		RetryBase:          cfg.Download.RetryBase,
		ConnectTimeout:     cfg.Download.ConnectTimeout,
		ReadTimeout:        cfg.Download.ReadTimeout,
	}
	engineOpts := []download.EngineOption{
		download.WithMetrics(metrics.NewDownloadMetrics()),
	}
	if s3Client != nil {
		engineOpts = append(engineOpts, download.WithS3Source(s3Client))
	}
	service := download.NewService(registry, archiveClient, provider, engineCfg, engineOpts...)

	// Reprojection cache and renderer behind the preview endpoint
	previewCache := previewcache.New(
		cfg.PreviewCache.TTL,
		cfg.PreviewCache.MaxEntries,
		int64(cfg.PreviewCache.MaxBytes),
		previewcache.WithMetrics(metrics.NewPreviewCacheMetrics()),
	)
	renderer := render.New(provider)

	// Control-plane API server
	apiCfg := api.APIConfig{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		ReadTimeout:    cfg.API.ReadTimeout,
		WriteTimeout:   cfg.API.WriteTimeout,
		IdleTimeout:    cfg.API.IdleTimeout,
		RequestTimeout: cfg.API.RequestTimeout,
	}
	apiServer := api.NewServer(apiCfg, api.Deps{
		Registry:             registry,
		Provider:             provider,
		Downloads:            service,
		PreviewCache:         previewCache,
		Renderer:             renderer,
		PreviewDefaultBudget: defaultPreviewBudget,
		PreviewMaxBudget:     cfg.PreviewCache.InputPixelBudget,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Dedicated metrics listener, scraped separately from the API port
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metrics.Handler(),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", logger.KeyError, err)
			}
		}()
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.KeyError, err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
		return
	}

	// Pause live transfers so their offsets are journaled, then stop the
	// HTTP surfaces
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	service.Shutdown(shutdownCtx)
	cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", logger.KeyError, err)
		}
	}

	if err := <-serverDone; err != nil {
		logger.Error("Server shutdown error", logger.KeyError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// buildProvider constructs the configured storage backend. The returned
// S3 client is nil unless the s3 provider is selected.
func buildProvider(ctx context.Context, cfg *config.Config) (storage.Provider, *awss3.Client, error) {
	switch cfg.Storage.Provider {
	case "local":
		provider, err := storage.NewLocalProvider(cfg.Storage.Root)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create local provider: %w", err)
		}
		return provider, nil, nil

	case "s3":
		cache, err := tempcache.New(
			cfg.TempCache.Dir,
			int64(cfg.TempCache.MaxBytes),
			tempcache.WithMetrics(metrics.NewTempCacheMetrics()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create temp cache: %w", err)
		}

		client, err := s3storage.NewClient(ctx,
			cfg.Storage.S3.Endpoint,
			cfg.Storage.S3.Region,
			cfg.Storage.S3.AccessKey,
			cfg.Storage.S3.SecretKey,
			cfg.Storage.S3.ForcePathStyle,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
		}

		provider, err := s3storage.New(client, awss3.NewPresignClient(client), s3storage.Config{
			Bucket:         cfg.Storage.S3.Bucket,
			Endpoint:       cfg.Storage.S3.Endpoint,
			PublicEndpoint: cfg.Storage.S3.PublicEndpoint,
			Cache:          cache,
			Metrics:        metrics.NewS3Metrics(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 provider: %w", err)
		}
		return provider, client, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}
