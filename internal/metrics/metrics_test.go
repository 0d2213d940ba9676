package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveOp("write", "ok", time.Millisecond)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.Broadcast()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("write", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts))

	n, err := testutil.GatherAndCount(reg, "blobdir_store_operations_total", "blobdir_watch_broadcasts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestShouldFailRegisteringTwice(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestShouldRollBackPartialRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	clash := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blobdir",
		Subsystem: "watch",
		Name:      "broadcasts_total",
		Help:      "Registered by someone else",
	})
	require.NoError(t, reg.Register(clash))

	m, err := New(nil)
	require.NoError(t, err)
	require.Error(t, m.Register(reg))

	require.True(t, reg.Unregister(clash))
	require.NoError(t, m.Register(reg), "nothing is left registered by the failed attempt")

	m.Unregister(reg)
	require.NoError(t, m.Register(reg))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveOp("read", "ok", time.Second)
		m.CacheHit()
		m.CacheMiss()
		m.Broadcast()
	})
}
