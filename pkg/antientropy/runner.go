package antientropy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/merklekv-mobile/pkg/log"
	"github.com/cuemby/merklekv-mobile/pkg/metrics"
)

// defaultInterval matches the spec's anti-entropy cadence: frequent enough
// to catch drift, infrequent enough not to dominate the transport.
const defaultInterval = 30 * time.Second

// defaultSessionTimeout is the soft deadline for one peer round.
const defaultSessionTimeout = 30 * time.Second

// PeerLister returns the peer node ids currently known to the transport
// layer, e.g. from recent replication traffic.
type PeerLister func() []string

// IntervalFunc returns the delay to wait before the next anti-entropy
// cycle, re-read before every cycle so the lifecycle adapter's
// Outputs.SyncIntervalSeconds can retune the cadence at each idle
// boundary.
type IntervalFunc func() time.Duration

// DeferFunc reports whether background anti-entropy rounds should be
// skipped this cycle, e.g. backed by the lifecycle adapter's current
// Outputs.DeferNonCriticalRequests.
type DeferFunc func() bool

// Runner drives periodic anti-entropy sessions against known peers, one at
// a time, the same timer-plus-stop-channel shape used elsewhere in this
// codebase for background loops.
type Runner struct {
	session     *Session
	peers       PeerLister
	interval    IntervalFunc
	shouldDefer DeferFunc
	onDefer     func()
	logger      zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewRunner creates a Runner with the default fixed interval.
func NewRunner(session *Session, peers PeerLister) *Runner {
	return &Runner{
		session:  session,
		peers:    peers,
		interval: func() time.Duration { return defaultInterval },
		logger:   log.WithComponent("antientropy"),
		stopCh:   make(chan struct{}),
	}
}

// SetIntervalFunc replaces the interval source, e.g. with one backed by
// the lifecycle adapter's current Outputs.SyncIntervalSeconds.
func (r *Runner) SetIntervalFunc(f IntervalFunc) {
	if f == nil {
		return
	}
	r.mu.Lock()
	r.interval = f
	r.mu.Unlock()
}

// SetDeferFunc installs shouldDefer and the callback invoked every time a
// cycle is skipped because of it — anti-entropy rounds are exactly the
// non-critical background traffic Outputs.DeferNonCriticalRequests exists
// to shed, so a cycle is dropped entirely rather than just slowed down.
func (r *Runner) SetDeferFunc(shouldDefer DeferFunc, onDefer func()) {
	r.mu.Lock()
	r.shouldDefer = shouldDefer
	r.onDefer = onDefer
	r.mu.Unlock()
}

func (r *Runner) currentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval()
}

// deferNow reports whether this cycle should be skipped, invoking onDefer
// as a side effect when it is.
func (r *Runner) deferNow() bool {
	r.mu.Lock()
	shouldDefer, onDefer := r.shouldDefer, r.onDefer
	r.mu.Unlock()
	if shouldDefer == nil || !shouldDefer() {
		return false
	}
	if onDefer != nil {
		onDefer()
	}
	return true
}

// Start begins the background loop.
func (r *Runner) Start() {
	go r.run()
}

// Stop stops the loop.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.stopCh:
		return // already stopped
	default:
		close(r.stopCh)
	}
}

func (r *Runner) run() {
	r.logger.Info().Dur("interval", r.currentInterval()).Msg("anti-entropy runner started")

	for {
		timer := time.NewTimer(r.currentInterval())
		select {
		case <-timer.C:
			if !r.deferNow() {
				r.cycle()
			}
		case <-r.stopCh:
			timer.Stop()
			r.logger.Info().Msg("anti-entropy runner stopped")
			return
		}
	}
}

func (r *Runner) cycle() {
	timer := metrics.NewTimer()
	outcome := "ok"
	defer func() {
		timer.ObserveDuration(metrics.AntiEntropyCycleDuration)
		metrics.AntiEntropySessionsTotal.WithLabelValues(outcome).Inc()
	}()

	for _, peerID := range r.peers() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSessionTimeout)
		result, err := r.session.Run(ctx, peerID)
		cancel()
		if err != nil {
			outcome = "error"
			r.logger.Warn().Err(err).Str("peer_node_id", peerID).Msg("anti-entropy round failed")
			continue
		}
		if result.BucketsRepaired > 0 {
			metrics.AntiEntropyBucketsRepaired.Add(float64(result.BucketsRepaired))
			r.logger.Info().
				Str("peer_node_id", peerID).
				Int("buckets_repaired", result.BucketsRepaired).
				Int("entries_applied", result.EntriesApplied).
				Msg("anti-entropy repaired divergent buckets")
		}
	}
}
