package orphanage

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the orphanage's Prometheus instruments. A nil Registerer is
// accepted (tests and single-process tools that don't run a metrics
// endpoint) — the counters still work, they just aren't exposed anywhere.
type metrics struct {
	size     prometheus.Gauge
	added    prometheus.Counter
	rejected prometheus.Counter
	evicted  prometheus.Counter
	expired  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "obsidian",
			Subsystem: "orphanage",
			Name:      "size",
			Help:      "Number of orphan transactions currently held.",
		}),
		added: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obsidian",
			Subsystem: "orphanage",
			Name:      "added_total",
			Help:      "Total orphan transactions accepted.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obsidian",
			Subsystem: "orphanage",
			Name:      "rejected_total",
			Help:      "Total transactions rejected as duplicate or oversized.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obsidian",
			Subsystem: "orphanage",
			Name:      "evicted_total",
			Help:      "Total orphans removed by random overflow eviction.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obsidian",
			Subsystem: "orphanage",
			Name:      "expired_total",
			Help:      "Total orphans removed by the expiration sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.size, m.added, m.rejected, m.evicted, m.expired)
	}
	return m
}
