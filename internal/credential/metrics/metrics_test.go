package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"soulcert/internal/credential/models"
)

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("burn", nil, time.Millisecond)
	m.ObserveOperation("burn", models.ErrBurnNotAuthorized, time.Millisecond)
	m.ObserveOperation("burn", models.ErrBurnNotAuthorized, time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("burn", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.operations.WithLabelValues("burn", "burn_not_authorized")))
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IncRecordsMinted()
	m.IncRecordsMinted()
	m.IncRecordsBurned()
	m.IncPublishFailure("kafka")
	m.IncCacheLookup("hit")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.recordsMinted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.recordsBurned))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.publishFailures.WithLabelValues("kafka")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("mint", nil, time.Second)
		m.IncRecordsMinted()
		m.IncRecordsBurned()
		m.IncPublishFailure("log")
		m.IncCacheLookup("miss")
	})
}
