package lifecycle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/merklekv-mobile/pkg/lifecycle"
)

func TestDeriveNormal(t *testing.T) {
	out := lifecycle.Derive(lifecycle.Inputs{BatteryLevel: 80})
	assert.Equal(t, 60, out.KeepAliveSeconds)
	assert.Equal(t, 30, out.SyncIntervalSeconds)
	assert.Equal(t, 10, out.MaxConcurrentOperations)
	assert.False(t, out.DeferNonCriticalRequests)
}

func TestDeriveLow(t *testing.T) {
	out := lifecycle.Derive(lifecycle.Inputs{BatteryLevel: 15})
	assert.Equal(t, 120, out.KeepAliveSeconds)
	assert.Equal(t, 60, out.SyncIntervalSeconds)
	assert.Equal(t, 7, out.MaxConcurrentOperations)
}

func TestDeriveLowPowerSave(t *testing.T) {
	out := lifecycle.Derive(lifecycle.Inputs{BatteryLevel: 15, PowerSave: true})
	assert.Equal(t, 180, out.KeepAliveSeconds)
	assert.Equal(t, 120, out.SyncIntervalSeconds)
	assert.Equal(t, 5, out.MaxConcurrentOperations)
	assert.True(t, out.DeferNonCriticalRequests)
}

func TestDeriveCritical(t *testing.T) {
	out := lifecycle.Derive(lifecycle.Inputs{BatteryLevel: 5})
	assert.Equal(t, 300, out.KeepAliveSeconds)
	assert.Equal(t, 300, out.SyncIntervalSeconds)
	assert.Equal(t, 2, out.MaxConcurrentOperations)
	assert.True(t, out.DeferNonCriticalRequests)
}

func TestChargingResetsKeepAliveUnlessCritical(t *testing.T) {
	out := lifecycle.Derive(lifecycle.Inputs{BatteryLevel: 15, Charging: true})
	assert.Equal(t, 60, out.KeepAliveSeconds)

	critical := lifecycle.Derive(lifecycle.Inputs{BatteryLevel: 5, Charging: true})
	assert.Equal(t, 300, critical.KeepAliveSeconds)
}

func TestAdapterUpdateSwapsCurrent(t *testing.T) {
	a := lifecycle.NewAdapter()
	a.Update(lifecycle.Inputs{BatteryLevel: 5})
	assert.Equal(t, 2, a.Current().MaxConcurrentOperations)
}

func TestDeriveCriticalSignalsSuspend(t *testing.T) {
	out := lifecycle.Derive(lifecycle.Inputs{BatteryLevel: 5})
	assert.True(t, out.Suspend)

	normal := lifecycle.Derive(lifecycle.Inputs{BatteryLevel: 80})
	assert.False(t, normal.Suspend)
}

func TestThresholdsOverrideDefaults(t *testing.T) {
	thresholds := lifecycle.Thresholds{Low: 50, Critical: 30, AdaptiveKeepAlive: true, AdaptiveSync: true, Throttle: true, ReduceBackground: true}
	a := lifecycle.NewAdapterWithThresholds(thresholds)

	out := a.Update(lifecycle.Inputs{BatteryLevel: 40})
	assert.True(t, out.Suspend == false)
	assert.Equal(t, 7, out.MaxConcurrentOperations) // low but not power-save

	critical := a.Update(lifecycle.Inputs{BatteryLevel: 20})
	assert.True(t, critical.Suspend)
}

func TestThresholdsDisabledFeaturesFallBackToNormal(t *testing.T) {
	thresholds := lifecycle.Thresholds{Low: 20, Critical: 10, Throttle: false, AdaptiveSync: false, ReduceBackground: false}
	a := lifecycle.NewAdapterWithThresholds(thresholds)

	out := a.Update(lifecycle.Inputs{BatteryLevel: 15, PowerSave: true})
	assert.Equal(t, 10, out.MaxConcurrentOperations)
	assert.Equal(t, 30, out.SyncIntervalSeconds)
	assert.False(t, out.DeferNonCriticalRequests)
}
