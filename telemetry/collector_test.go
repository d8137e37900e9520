package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/unitsffi/cfg"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStats struct {
	mu    sync.Mutex
	stats map[string]int
}

func (s *stubStats) set(stats map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

func (s *stubStats) AllocationStats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

func enablePrometheus(t *testing.T) {
	t.Helper()
	previous := cfg.Config.Prometheus.Enabled
	cfg.Config.Prometheus.Enabled = true
	InitializeTelemetry()
	InitMetrics()
	t.Cleanup(func() {
		cfg.Config.Prometheus.Enabled = previous
		registry = nil
		InitMetrics()
	})
}

func TestNoopWhenDisabled(t *testing.T) {
	require.Nil(t, GetMetricsHandler())
	assert.NotPanics(t, func() {
		NativeCallsTotal.With("X_GetX").Inc()
		LiveAllocations.With("X").Set(3)
		LiveAllocations.Reset()
	})
}

func TestCollectorUpdatesLiveAllocations(t *testing.T) {
	enablePrometheus(t)
	vec := LiveAllocations.(*prometheusGaugeVec).vec

	stats := &stubStats{}
	stats.set(map[string]int{"Vec3": 2, "X": 1})
	mc := NewMetricsCollector(stats, time.Hour)
	mc.collect()
	assert.Equal(t, 2.0, testutil.ToFloat64(vec.WithLabelValues("Vec3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("X")))

	stats.set(map[string]int{"Vec3": 1})
	mc.collect()
	assert.Equal(t, 1, testutil.CollectAndCount(vec))
	assert.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("Vec3")))
}

func TestCollectorStartStop(t *testing.T) {
	enablePrometheus(t)
	vec := LiveAllocations.(*prometheusGaugeVec).vec

	stats := &stubStats{}
	stats.set(map[string]int{"Vec4": 3})
	mc := NewMetricsCollector(stats, 10*time.Millisecond)
	mc.Start()
	defer mc.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(vec.WithLabelValues("Vec4")) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestMetricsHandlerServesLibraryLabel(t *testing.T) {
	enablePrometheus(t)
	LibraryLoadsTotal.Inc()

	handler := GetMetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `unitsffi_library_loads_total{library="units"} 1`))
}
