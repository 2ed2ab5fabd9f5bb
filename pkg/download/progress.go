package download

import (
	"sync"
	"time"

	"github.com/skyforge/fitsflow/pkg/jobs"
)

// ProgressSink receives self-consistent job snapshots. The engine invokes
// it at most once per throttle interval per job, plus once for every
// status change. Sinks persist the journal and publish client-facing
// progress; they must not block for long.
type ProgressSink func(snapshot jobs.Snapshot)

// DefaultProgressInterval is the minimum spacing between throttled
// progress emissions.
const DefaultProgressInterval = 100 * time.Millisecond

// progressThrottle rate-limits snapshot emission for one job.
type progressThrottle struct {
	sink     ProgressSink
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastEmit time.Time
}

func newProgressThrottle(sink ProgressSink, interval time.Duration) *progressThrottle {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &progressThrottle{sink: sink, interval: interval, now: time.Now}
}

// offer emits the snapshot if the throttle interval has elapsed.
func (p *progressThrottle) offer(snapshot jobs.Snapshot) {
	if p.sink == nil {
		return
	}
	now := p.now()
	p.mu.Lock()
	if now.Sub(p.lastEmit) < p.interval {
		p.mu.Unlock()
		return
	}
	p.lastEmit = now
	p.mu.Unlock()

	p.sink(snapshot)
}

// force emits unconditionally. Used for status transitions and final
// states so clients never miss a terminal snapshot.
func (p *progressThrottle) force(snapshot jobs.Snapshot) {
	if p.sink == nil {
		return
	}
	p.mu.Lock()
	p.lastEmit = p.now()
	p.mu.Unlock()

	p.sink(snapshot)
}
