package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/previewcache"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// RenderRequest describes one reprojection job handed to the Renderer.
// Channels are storage keys of FITS files already present in storage.
type RenderRequest struct {
	// Channels are the input storage keys: exactly [r,g,b] for RGB mode,
	// one or more labels for N-channel mode.
	Channels []string

	// InputPixelBudget caps the per-channel pixel count the renderer may
	// load; larger inputs are downscaled to fit.
	InputPixelBudget int64
}

// Renderer runs the load/downscale/reproject pipeline for a preview
// request. Implementations are expected to be expensive; the handler
// consults the reprojection cache before calling one.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*previewcache.Entry, error)
}

// PreviewHandler handles POST /api/v1/preview.
type PreviewHandler struct {
	cache          *previewcache.Cache
	renderer       Renderer
	defaultBudget  int64
	maxPixelBudget int64
}

// NewPreviewHandler creates a preview handler. defaultBudget is used when
// a request omits input_pixel_budget; maxPixelBudget is the hard cap
// above which requests are rejected with 413.
func NewPreviewHandler(cache *previewcache.Cache, renderer Renderer, defaultBudget, maxPixelBudget int64) *PreviewHandler {
	return &PreviewHandler{
		cache:          cache,
		renderer:       renderer,
		defaultBudget:  defaultBudget,
		maxPixelBudget: maxPixelBudget,
	}
}

// PreviewRequest is the body of POST /api/v1/preview.
//
// Stretch parameters are deliberately opaque to the cache: two requests
// differing only in stretch share a reprojection entry.
type PreviewRequest struct {
	Mode             string            `json:"mode"` // "rgb" or "channels"
	R                string            `json:"r,omitempty"`
	G                string            `json:"g,omitempty"`
	B                string            `json:"b,omitempty"`
	Channels         []string          `json:"channels,omitempty"`
	InputPixelBudget int64             `json:"input_pixel_budget,omitempty"`
	Stretch          map[string]string `json:"stretch,omitempty"`
}

// PreviewPlane is the per-channel slice of a preview response.
type PreviewPlane struct {
	Label  string `json:"label"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// PreviewResponse is the body of a successful preview request.
type PreviewResponse struct {
	Cache  string         `json:"cache"` // "hit" or "miss"
	Planes []PreviewPlane `json:"planes"`
	Bytes  int64          `json:"bytes"`
}

// Preview handles POST /api/v1/preview.
//
// The reprojection result is keyed by channel paths plus pixel budget
// only, so stretch-only parameter changes hit the cache and skip the
// render pipeline entirely.
func (h *PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	budget := req.InputPixelBudget
	if budget <= 0 {
		budget = h.defaultBudget
	}
	if h.maxPixelBudget > 0 && budget > h.maxPixelBudget {
		PayloadTooLarge(w, fmt.Sprintf(
			"input pixel budget %d exceeds the configured maximum %d", budget, h.maxPixelBudget))
		return
	}

	var key string
	var channels []string
	switch req.Mode {
	case "rgb":
		if req.R == "" || req.G == "" || req.B == "" {
			BadRequest(w, "rgb mode requires r, g and b channel paths")
			return
		}
		key = previewcache.RGBKey(req.R, req.G, req.B, budget)
		channels = []string{req.R, req.G, req.B}
	case "channels":
		if len(req.Channels) == 0 {
			BadRequest(w, "channels mode requires at least one channel path")
			return
		}
		key = previewcache.ChannelKey(req.Channels, budget)
		channels = req.Channels
	default:
		BadRequest(w, "mode must be \"rgb\" or \"channels\"")
		return
	}

	if entry := h.cache.Get(key); entry != nil {
		logger.Debug("preview cache hit", logger.KeyCacheHit, true, logger.KeyKey, key)
		WriteJSONOK(w, buildPreviewResponse("hit", entry))
		return
	}

	entry, err := h.renderer.Render(r.Context(), RenderRequest{
		Channels:         channels,
		InputPixelBudget: budget,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			NotFound(w, fmt.Sprintf("channel not in storage: %v", err))
			return
		}
		InternalServerError(w, fmt.Sprintf("reprojection failed: %v", err))
		return
	}

	if err := h.cache.Put(key, entry); err != nil {
		// An over-budget result is still served; it just stays uncached
		logger.Warn("preview result not cached", logger.KeyKey, key, logger.KeyError, err)
	}

	WriteJSONOK(w, buildPreviewResponse("miss", entry))
}

func buildPreviewResponse(cache string, entry *previewcache.Entry) PreviewResponse {
	resp := PreviewResponse{
		Cache:  cache,
		Planes: make([]PreviewPlane, 0, len(entry.Planes)),
	}
	for i := range entry.Planes {
		p := &entry.Planes[i]
		resp.Planes = append(resp.Planes, PreviewPlane{
			Label:  p.Label,
			Width:  p.Width,
			Height: p.Height,
		})
		resp.Bytes += int64(len(p.Pixels)) * 4
	}
	return resp
}
