package download

import (
	"sync"
	"time"
)

// speedSample is one byte-delta observation.
type speedSample struct {
	at    time.Time
	bytes int64
}

// SpeedWindow computes instantaneous throughput from a sliding window of
// byte-delta samples. Safe for concurrent use by all workers of a job.
type SpeedWindow struct {
	mu      sync.Mutex
	window  time.Duration
	samples []speedSample
	now     func() time.Time
}

// DefaultSpeedWindow is the sliding window length for speed/ETA.
const DefaultSpeedWindow = 5 * time.Second

// NewSpeedWindow creates a tracker with the given window length.
func NewSpeedWindow(window time.Duration) *SpeedWindow {
	if window <= 0 {
		window = DefaultSpeedWindow
	}
	return &SpeedWindow{window: window, now: time.Now}
}

// Add records a byte delta at the current instant.
func (w *SpeedWindow) Add(bytes int64) {
	now := w.now()
	w.mu.Lock()
	w.samples = append(w.samples, speedSample{at: now, bytes: bytes})
	w.pruneLocked(now)
	w.mu.Unlock()
}

// Speed returns the current throughput in bytes per second, 0 when no
// samples fall inside the window.
func (w *SpeedWindow) Speed() float64 {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)

	if len(w.samples) == 0 {
		return 0
	}
	var total int64
	for _, s := range w.samples {
		total += s.bytes
	}
	elapsed := now.Sub(w.samples[0].at)
	if elapsed < time.Second {
		elapsed = time.Second
	}
	return float64(total) / elapsed.Seconds()
}

// pruneLocked drops samples older than the window. Caller holds w.mu.
func (w *SpeedWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}
