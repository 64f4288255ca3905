package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	require.NotNil(t, collector)
	assert.NotNil(t, collector.jobsScheduled)
	assert.NotNil(t, collector.jobsDispatched)
	assert.NotNil(t, collector.jobsCompleted)
	assert.NotNil(t, collector.jobsFailed)
	assert.NotNil(t, collector.jobsTimedOut)
	assert.NotNil(t, collector.jobLatency)
	assert.NotNil(t, collector.pending)
	assert.NotNil(t, collector.running)
	assert.NotNil(t, collector.poolSize)
}

func TestRecordMethodsDoNotPanic(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordScheduled()
		collector.RecordDispatched()
		collector.RecordCompleted()
		collector.RecordFailed()
		collector.RecordTimedOut()
		collector.ObserveLatency(250 * time.Millisecond)
		collector.UpdatePoolStats(3, 1)
		collector.SetPoolSize(10)
	})
}

func TestUpdatePoolStatsAcceptsBoundaryValues(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	for _, tc := range []struct{ pending, running int }{
		{0, 0}, {100, 0}, {0, 100}, {50, 50},
	} {
		assert.NotPanics(t, func() {
			collector.UpdatePoolStats(tc.pending, tc.running)
		})
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	done := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordScheduled()
			collector.RecordDispatched()
			collector.RecordCompleted()
			collector.ObserveLatency(10 * time.Millisecond)
			collector.UpdatePoolStats(10, 5)
			done <- struct{}{}
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	assert.Panics(t, func() {
		NewCollector()
	}, "a second collector registered against the same registry should panic on duplicate metric names")
}

func TestJobLifecycleSequence(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordScheduled()
		collector.UpdatePoolStats(1, 0)

		collector.RecordDispatched()
		collector.UpdatePoolStats(0, 1)

		collector.RecordCompleted()
		collector.ObserveLatency(500 * time.Millisecond)
		collector.UpdatePoolStats(0, 0)
	})
}

func TestJobFailureSequence(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordScheduled()
		collector.RecordDispatched()
		collector.RecordFailed()
		collector.RecordTimedOut()
	})
}
