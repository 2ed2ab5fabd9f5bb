// Package render implements the load/downscale stage behind the preview
// endpoint. Inputs are FITS files already present in storage; each channel
// is read through the storage provider (so S3 reads go through the temp
// cache), decoded from its primary HDU, and average-pooled down to the
// requested pixel budget. The result feeds the reprojection cache.
package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/api/handlers"
	"github.com/skyforge/fitsflow/pkg/previewcache"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// ErrNotFound indicates a channel key absent from storage.
var ErrNotFound = errors.New("render: channel not found in storage")

// Renderer loads FITS channels from a storage provider and downscales
// them to a pixel budget. It implements handlers.Renderer.
type Renderer struct {
	provider storage.Provider
}

// New creates a renderer backed by the given provider.
func New(provider storage.Provider) *Renderer {
	return &Renderer{provider: provider}
}

// Render materializes each requested channel, decodes its image plane,
// and pools it down so width*height stays within the pixel budget.
func (r *Renderer) Render(ctx context.Context, req handlers.RenderRequest) (*previewcache.Entry, error) {
	entry := &previewcache.Entry{
		Planes: make([]previewcache.ChannelPlane, 0, len(req.Channels)),
	}

	for _, key := range req.Channels {
		localPath, err := r.provider.ReadToTemp(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Both sentinels stay in the chain; the handler matches
				// the storage one
				return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, key, err)
			}
			return nil, fmt.Errorf("failed to materialize %s: %w", key, err)
		}

		img, err := ReadImage(localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}

		plane := downscale(img, req.InputPixelBudget)
		plane.Label = path.Base(key)
		entry.Planes = append(entry.Planes, plane)

		logger.Debug("channel rendered",
			logger.KeyKey, key,
			"width", plane.Width,
			"height", plane.Height)
	}

	return entry, nil
}

// downscale average-pools the image by an integer factor chosen so the
// output pixel count fits the budget. A budget of zero or an image
// already within budget is returned as-is.
func downscale(img *Image, budget int64) previewcache.ChannelPlane {
	factor := 1
	if budget > 0 {
		for int64(img.Width/factor)*int64(img.Height/factor) > budget {
			factor++
		}
	}

	if factor == 1 {
		return previewcache.ChannelPlane{
			Width:  img.Width,
			Height: img.Height,
			Pixels: img.Pixels,
		}
	}

	outW := img.Width / factor
	outH := img.Height / factor
	out := make([]float32, outW*outH)

	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			var sum float64
			var n int
			for dy := 0; dy < factor; dy++ {
				for dx := 0; dx < factor; dx++ {
					v := img.Pixels[(oy*factor+dy)*img.Width+(ox*factor+dx)]
					if math.IsNaN(float64(v)) {
						continue
					}
					sum += float64(v)
					n++
				}
			}
			if n > 0 {
				out[oy*outW+ox] = float32(sum / float64(n))
			} else {
				out[oy*outW+ox] = float32(math.NaN())
			}
		}
	}

	return previewcache.ChannelPlane{
		Width:  outW,
		Height: outH,
		Pixels: out,
	}
}
