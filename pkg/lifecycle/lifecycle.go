// Package lifecycle derives transport and queue tuning parameters from
// battery/power inputs the host process feeds in — this package never
// probes the OS itself, per spec.md's "OS-specific battery/network probes"
// non-goal.
package lifecycle

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/merklekv-mobile/pkg/log"
	"github.com/cuemby/merklekv-mobile/pkg/metrics"
)

// Thresholds, in percent battery level, per spec.md §4.10. These are the
// defaults DefaultThresholds uses; pkg/config.BatteryConfig overrides them
// per deployment.
const (
	LowThreshold      = 20
	CriticalThreshold = 10
)

// Inputs is what the host process reports about device power state.
type Inputs struct {
	BatteryLevel int // 0-100
	Charging     bool
	PowerSave    bool
	LowPower     bool // host-reported "low power mode", independent of level
}

// Outputs are the derived tuning parameters applied to the transport and
// queue. Suspend signals the critical-battery profile where the transport
// should stop trying to maintain a live connection entirely rather than
// just slow down.
type Outputs struct {
	KeepAliveSeconds         int
	SyncIntervalSeconds      int
	MaxConcurrentOperations  int
	DeferNonCriticalRequests bool
	Suspend                  bool
}

// Thresholds carries the battery percentages and feature toggles pkg/config
// loads from BatteryConfig. Derive is a method on Thresholds so every
// Adapter can run the spec's table against its own deployment's
// configuration instead of the package-wide defaults.
type Thresholds struct {
	Low               int
	Critical          int
	AdaptiveKeepAlive bool
	AdaptiveSync      bool
	Throttle          bool
	ReduceBackground  bool
}

// DefaultThresholds matches spec.md §4.10's table with every adaptive
// feature enabled.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:               LowThreshold,
		Critical:          CriticalThreshold,
		AdaptiveKeepAlive: true,
		AdaptiveSync:      true,
		Throttle:          true,
		ReduceBackground:  true,
	}
}

func (t Thresholds) critical(in Inputs) bool { return in.BatteryLevel <= t.Critical }
func (t Thresholds) low(in Inputs) bool      { return in.BatteryLevel <= t.Low || in.LowPower }

// Derive is a pure function from Inputs to Outputs implementing spec.md
// §4.10's threshold table under t. Charging resets keep-alive to the
// normal 60s regardless of battery level, except at the critical
// threshold, and only when AdaptiveKeepAlive is enabled. Throttle,
// AdaptiveSync and ReduceBackground disabled fall back to the normal-power
// value for the output they each gate.
func (t Thresholds) Derive(in Inputs) Outputs {
	out := t.derivePowerProfile(in)
	if in.Charging && !t.critical(in) && t.AdaptiveKeepAlive {
		out.KeepAliveSeconds = 60
	}
	if !t.Throttle {
		out.MaxConcurrentOperations = 10
	}
	if !t.AdaptiveSync {
		out.SyncIntervalSeconds = 30
	}
	if !t.ReduceBackground {
		out.DeferNonCriticalRequests = false
	}
	return out
}

func (t Thresholds) derivePowerProfile(in Inputs) Outputs {
	switch {
	case t.critical(in):
		return Outputs{
			KeepAliveSeconds:         300,
			SyncIntervalSeconds:      300,
			MaxConcurrentOperations:  2,
			DeferNonCriticalRequests: true,
			Suspend:                  true,
		}
	case t.low(in) && in.PowerSave:
		return Outputs{
			KeepAliveSeconds:         180,
			SyncIntervalSeconds:      120,
			MaxConcurrentOperations:  5,
			DeferNonCriticalRequests: true,
		}
	case t.low(in):
		return Outputs{
			KeepAliveSeconds:         120,
			SyncIntervalSeconds:      60,
			MaxConcurrentOperations:  7,
			DeferNonCriticalRequests: false,
		}
	default:
		return Outputs{
			KeepAliveSeconds:         60,
			SyncIntervalSeconds:      30,
			MaxConcurrentOperations:  10,
			DeferNonCriticalRequests: false,
		}
	}
}

// Derive runs spec.md §4.10's threshold table under DefaultThresholds.
// Callers with a configured BatteryConfig should construct an Adapter via
// NewAdapterWithThresholds instead so Update honors it.
func Derive(in Inputs) Outputs {
	return DefaultThresholds().Derive(in)
}

// Adapter applies new Outputs atomically at the next idle boundary,
// grounded on the teacher's health.Status.Update hysteresis pattern: state
// only flips after a full Derive call, never partway through a publish.
type Adapter struct {
	mu         sync.RWMutex
	thresholds Thresholds
	current    Outputs
	logger     zerolog.Logger
}

// NewAdapter constructs an Adapter under DefaultThresholds, starting from
// the normal-power Outputs.
func NewAdapter() *Adapter {
	return NewAdapterWithThresholds(DefaultThresholds())
}

// NewAdapterWithThresholds constructs an Adapter under a BatteryConfig-
// derived Thresholds, for embedders that configured non-default battery
// percentages or disabled one of the adaptive features.
func NewAdapterWithThresholds(thresholds Thresholds) *Adapter {
	a := &Adapter{
		thresholds: thresholds,
		current:    thresholds.Derive(Inputs{BatteryLevel: 100}),
		logger:     log.WithComponent("lifecycle"),
	}
	metrics.LifecycleSyncIntervalSeconds.Set(float64(a.current.SyncIntervalSeconds))
	return a
}

// Update derives new Outputs from in and swaps them in. Safe to call from
// any goroutine; callers needing "never mid-publish" semantics should call
// this only at an idle boundary (e.g. between drain batches).
func (a *Adapter) Update(in Inputs) Outputs {
	next := a.thresholds.Derive(in)

	a.mu.Lock()
	prev := a.current
	a.current = next
	a.mu.Unlock()

	if next != prev {
		a.logger.Info().
			Int("keep_alive_seconds", next.KeepAliveSeconds).
			Int("sync_interval_seconds", next.SyncIntervalSeconds).
			Int("max_concurrent_operations", next.MaxConcurrentOperations).
			Bool("defer_non_critical_requests", next.DeferNonCriticalRequests).
			Msg("lifecycle parameters updated")
		metrics.LifecycleSyncIntervalSeconds.Set(float64(next.SyncIntervalSeconds))
	}
	return next
}

// Current returns the last applied Outputs.
func (a *Adapter) Current() Outputs {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// NoteDeferred records that a non-critical request was deferred under the
// current power profile.
func (a *Adapter) NoteDeferred() {
	metrics.LifecycleDeferredRequestsTotal.Inc()
}
