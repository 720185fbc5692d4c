package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncRequestCreated("critical")
	m.IncRequestCreated("critical")
	m.IncTransition("pending", "matched")
	m.AddOutboxPublished(3)
	m.SetNearBreach(2)

	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsCreated.WithLabelValues("critical")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Transitions.WithLabelValues("pending", "matched")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.OutboxPublished), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.NearBreach), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncConflict("select_donor")
		m.IncReveal()
		m.ObserveMatchCandidates(4)
	})
}
