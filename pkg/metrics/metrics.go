// Package metrics holds the prometheus collectors of the counting engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric the engine reports. A nil *Collectors is valid and records nothing.
type Collectors struct {
	Scans          *prometheus.CounterVec
	RemoteInFlight prometheus.Gauge
	RemoteFailures *prometheus.CounterVec
	Confirmations  *prometheus.CounterVec
	CatalogSyncs   *prometheus.CounterVec
	OfflineWrites  prometheus.Counter
	EventsDropped  *prometheus.CounterVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockcount",
			Name:      "scans_total",
			Help:      "Barcode scans by deduplication result.",
		}, []string{"result"}),
		RemoteInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stockcount",
			Name:      "remote_operations_in_flight",
			Help:      "Remote store operations currently in flight.",
		}),
		RemoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockcount",
			Name:      "remote_failures_total",
			Help:      "Remote store operations that failed, by operation.",
		}, []string{"op"}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockcount",
			Name:      "overflow_confirmations_total",
			Help:      "Overflow confirmations by outcome.",
		}, []string{"outcome"}),
		CatalogSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockcount",
			Name:      "catalog_syncs_total",
			Help:      "Catalog synchronizations by status.",
		}, []string{"status"}),
		OfflineWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockcount",
			Name:      "offline_writes_total",
			Help:      "Counting list writes applied locally while the remote store was unreachable.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockcount",
			Name:      "events_dropped_total",
			Help:      "Change events not delivered to a slow subscriber, by event type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(c.Scans, c.RemoteInFlight, c.RemoteFailures, c.Confirmations, c.CatalogSyncs, c.OfflineWrites, c.EventsDropped)
	}
	return c
}

// Scan records one deduplication decision.
func (c *Collectors) Scan(accepted bool) {
	if c == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	c.Scans.WithLabelValues(result).Inc()
}

// InFlight moves the in-flight gauge by delta.
func (c *Collectors) InFlight(delta int) {
	if c == nil {
		return
	}
	c.RemoteInFlight.Add(float64(delta))
}

// RemoteFailure counts a failed remote operation.
func (c *Collectors) RemoteFailure(op string) {
	if c == nil {
		return
	}
	c.RemoteFailures.WithLabelValues(op).Inc()
}

// Confirmation counts an overflow confirmation event: raised, confirmed or cancelled.
func (c *Collectors) Confirmation(outcome string) {
	if c == nil {
		return
	}
	c.Confirmations.WithLabelValues(outcome).Inc()
}

// CatalogSync counts a catalog synchronization by status.
func (c *Collectors) CatalogSync(status string) {
	if c == nil {
		return
	}
	c.CatalogSyncs.WithLabelValues(status).Inc()
}

// OfflineWrite counts a write kept locally.
func (c *Collectors) OfflineWrite() {
	if c == nil {
		return
	}
	c.OfflineWrites.Inc()
}

// EventDropped counts an event a subscriber missed.
func (c *Collectors) EventDropped(eventType string) {
	if c == nil {
		return
	}
	c.EventsDropped.WithLabelValues(eventType).Inc()
}
