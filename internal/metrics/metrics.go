package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "privcal"

// Metrics groups every collector the client exports.
type Metrics struct {
	envelopesReceived prometheus.Counter
	duplicates        prometheus.Counter
	cacheHits         prometheus.Counter
	decryptFailures   *prometheus.CounterVec
	discardedKinds    prometheus.Counter
	emitted           prometheus.Counter
	invalidEvents     prometheus.Counter
	publishResults    *prometheus.CounterVec
	authOutcomes      *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		envelopesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "envelopes_received_total",
			Help: "Gift wraps delivered by relay subscriptions, duplicates included.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "duplicates_total",
			Help: "Gift wraps dropped because the id was already seen.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "decryption_cache_hits_total",
			Help: "Gift wraps answered from the decryption cache.",
		}),
		decryptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "decrypt_failures_total",
			Help: "Gift wraps that could not be opened, by reason.",
		}, []string{"reason"}),
		discardedKinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "discarded_kinds_total",
			Help: "Opened rumors whose kind is not a calendar kind.",
		}),
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "emitted_total",
			Help: "Calendar events handed to consumers.",
		}),
		invalidEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "invalid_events_total",
			Help: "Events from relays with a bad id or signature.",
		}),
		publishResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "publish_results_total",
			Help: "Per-relay publish outcomes.",
		}, []string{"outcome"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "auth_total",
			Help: "NIP-42 authentication attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.envelopesReceived, m.duplicates, m.cacheHits, m.decryptFailures,
		m.discardedKinds, m.emitted, m.invalidEvents, m.publishResults, m.authOutcomes,
	)
	return m
}

func (m *Metrics) EnvelopeReceived() {
	if m != nil {
		m.envelopesReceived.Inc()
	}
}

func (m *Metrics) Duplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// DecryptFailed counts a failure; reason is a small fixed vocabulary
// (malformed, misaddressed, signature, capability, timeout, other).
func (m *Metrics) DecryptFailed(reason string) {
	if m != nil {
		m.decryptFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) KindDiscarded() {
	if m != nil {
		m.discardedKinds.Inc()
	}
}

func (m *Metrics) Emitted() {
	if m != nil {
		m.emitted.Inc()
	}
}

func (m *Metrics) InvalidEvent() {
	if m != nil {
		m.invalidEvents.Inc()
	}
}

// Published counts one relay's answer to one event.
func (m *Metrics) Published(accepted bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if accepted {
		outcome = "accepted"
	}
	m.publishResults.WithLabelValues(outcome).Inc()
}

// Auth counts one authentication outcome (success, failure, no_signer).
func (m *Metrics) Auth(outcome string) {
	if m != nil {
		m.authOutcomes.WithLabelValues(outcome).Inc()
	}
}
