package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/api/handlers"
	"github.com/skyforge/fitsflow/pkg/jobs"
	"github.com/skyforge/fitsflow/pkg/previewcache"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// Deps are the collaborators the router exposes over HTTP. Registry and
// Provider feed the readiness probe; Metrics, PreviewCache and Renderer
// are optional and their routes are omitted when nil.
type Deps struct {
	Registry  *jobs.Registry
	Provider  storage.Provider
	Downloads handlers.DownloadService

	PreviewCache         *previewcache.Cache
	Renderer             handlers.Renderer
	PreviewDefaultBudget int64
	PreviewMaxBudget     int64

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// RequestTimeout bounds each request; zero means 60s.
	RequestTimeout time.Duration
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - POST /api/v1/downloads - Start (or auto-resume) a download job
//   - GET /api/v1/downloads/resumable - List resumable jobs
//   - GET /api/v1/downloads/{id} - Progress snapshot
//   - DELETE /api/v1/downloads/{id} - Dismiss a finished job
//   - POST /api/v1/downloads/{id}/pause|resume|cancel - Lifecycle controls
//   - POST /api/v1/preview - Reprojection preview (cache-fronted)
//   - GET /health, /health/ready - Probes
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	requestTimeout := deps.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 60 * time.Second
	}

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	healthHandler := handlers.NewHealthHandler(deps.Registry, deps.Provider)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Downloads != nil {
			downloads := handlers.NewDownloadsHandler(deps.Downloads)
			r.Route("/downloads", func(r chi.Router) {
				r.Post("/", downloads.Start)
				r.Get("/resumable", downloads.ListResumable)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", downloads.Get)
					r.Delete("/", downloads.Dismiss)
					r.Post("/pause", downloads.Pause)
					r.Post("/resume", downloads.Resume)
					r.Post("/cancel", downloads.Cancel)
				})
			})
		}

		if deps.PreviewCache != nil && deps.Renderer != nil {
			preview := handlers.NewPreviewHandler(
				deps.PreviewCache, deps.Renderer,
				deps.PreviewDefaultBudget, deps.PreviewMaxBudget)
			r.Post("/preview", preview.Preview)
		}
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyClientIP, r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			logger.KeyBytes, ww.BytesWritten(),
			logger.KeyDurationMs, duration.Milliseconds(),
		)
	})
}
