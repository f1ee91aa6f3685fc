package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/merklekv-mobile/pkg/log"
	"github.com/cuemby/merklekv-mobile/pkg/metrics"
)

// gcInterval is how often the GC runner sweeps for expired tombstones.
// A tombstone may outlive TombstoneGraceMillis by up to one interval,
// since a few minutes of extra retention past the grace period is harmless.
const gcInterval = 10 * time.Minute

// GCRunner periodically sweeps an Engine's tombstones past their grace
// period, the same ticker-plus-stop-channel shape as queue.Runner and
// antientropy.Runner.
type GCRunner struct {
	engine   Engine
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewGCRunner constructs a GCRunner with the default sweep interval.
func NewGCRunner(engine Engine) *GCRunner {
	return &GCRunner{
		engine:   engine,
		interval: gcInterval,
		logger:   log.WithComponent("storage"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (r *GCRunner) Start() {
	go r.run()
}

// Stop stops the loop.
func (r *GCRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
}

func (r *GCRunner) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *GCRunner) sweep() {
	removed, err := r.engine.GCTombstones(time.Now().UnixMilli())
	if err != nil {
		r.logger.Warn().Err(err).Msg("tombstone gc failed")
		return
	}
	if removed > 0 {
		metrics.TombstonesGCedTotal.Add(float64(removed))
		r.logger.Info().Int("removed", removed).Msg("tombstone gc swept expired entries")
	}
}
