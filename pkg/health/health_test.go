package health_test

import (
	"testing"
	"time"

	"github.com/cuemby/merklekv-mobile/pkg/health"
	"github.com/stretchr/testify/assert"
)

func TestStatusStaysHealthyBelowThreshold(t *testing.T) {
	s := health.NewStatus()
	cfg := health.Config{Retries: 3}

	s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)

	assert.True(t, s.Healthy)
	assert.Equal(t, 2, s.ConsecutiveFailures)
}

func TestStatusFlipsUnhealthyAtThreshold(t *testing.T) {
	s := health.NewStatus()
	cfg := health.Config{Retries: 3}

	for i := 0; i < 3; i++ {
		s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	}

	assert.False(t, s.Healthy)
}

func TestSingleSuccessClearsUnhealthy(t *testing.T) {
	s := health.NewStatus()
	cfg := health.Config{Retries: 2}

	s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.False(t, s.Healthy)

	s.Update(health.Result{Healthy: true, CheckedAt: time.Now()}, cfg)
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.ConsecutiveFailures)
}
