package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	m := NewCollector(prometheus.NewRegistry())

	m.FrameForwarded("robot → oculus", 12)
	m.FrameForwarded("robot → oculus", 0)
	m.FrameDropped("oculus → robot")
	m.ConnectionOpened("robot")
	m.ConnectionOpened("robot")
	m.ConnectionClosed("robot")
	m.Evicted("robot")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesForwarded.WithLabelValues("robot → oculus")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.bytesForwarded.WithLabelValues("robot → oculus")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesDropped.WithLabelValues("oculus → robot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("robot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions.WithLabelValues("robot")))
}

func TestCollectorHandler(t *testing.T) {
	m := NewCollector(prometheus.NewRegistry())
	m.RoundTrip("robot-ping → oculus-ping", 40*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "relay_round_trip_seconds_count")
}

func TestNilCollector(t *testing.T) {
	var m *Collector

	assert.NotPanics(t, func() {
		m.FrameForwarded("x", 1)
		m.FrameDropped("x")
		m.RoundTrip("x", time.Millisecond)
		m.ConnectionOpened("x")
		m.ConnectionClosed("x")
		m.Evicted("x")
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
