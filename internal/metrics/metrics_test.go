package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"privcal/internal/metrics"
)

func counterValues(t *testing.T, reg *prometheus.Registry, name string) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			label := ""
			for _, lp := range m.GetLabel() {
				label = lp.GetValue()
			}
			out[label] = m.GetCounter().GetValue()
		}
	}
	return out
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.EnvelopeReceived()
	m.EnvelopeReceived()
	m.Duplicate()
	m.DecryptFailed("malformed")
	m.Published(true)
	m.Published(false)
	m.Published(false)

	require.Equal(t, map[string]float64{"": 2}, counterValues(t, reg, "privcal_ingest_envelopes_received_total"))
	require.Equal(t, map[string]float64{"": 1}, counterValues(t, reg, "privcal_ingest_duplicates_total"))
	require.Equal(t, map[string]float64{"malformed": 1}, counterValues(t, reg, "privcal_ingest_decrypt_failures_total"))
	require.Equal(t,
		map[string]float64{"accepted": 1, "failed": 2},
		counterValues(t, reg, "privcal_relay_publish_results_total"),
	)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.EnvelopeReceived()
		m.CacheHit()
		m.Published(true)
		m.Auth("success")
	})
}
