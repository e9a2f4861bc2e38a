package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "whiteboard_sync"

// Outcome and result label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeIgnored  = "ignored"

	ResultHit  = "hit"
	ResultMiss = "miss"

	ResultDelivered = "delivered"
	ResultDropped   = "dropped"
)

// Collectors groups the realtime gateway metrics. A nil *Collectors is valid
// and records nothing.
type Collectors struct {
	Events      *prometheus.CounterVec
	CacheLookup *prometheus.CounterVec
	Deliveries  *prometheus.CounterVec
	Connections prometheus.Gauge
}

// NewCollectors builds an unregistered set of collectors.
func NewCollectors() *Collectors {
	return &Collectors{
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "events_total", Help: "Client events handled by the gateway, by event and outcome."},
			[]string{"event", "outcome"},
		),
		CacheLookup: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "cache_lookups_total", Help: "Snapshot cache lookups, by snapshot kind and result."},
			[]string{"kind", "result"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "broadcast_deliveries_total", Help: "Per-connection broadcast deliveries, by event and result."},
			[]string{"event", "result"},
		),
		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "connections", Help: "Currently open realtime connections."},
		),
	}
}

// Register adds every collector to reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{c.Events, c.CacheLookup, c.Deliveries, c.Connections} {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collectors) ObserveEvent(event, outcome string) {
	if c == nil {
		return
	}
	c.Events.WithLabelValues(event, outcome).Inc()
}

func (c *Collectors) ObserveCacheLookup(kind string, hit bool) {
	if c == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	c.CacheLookup.WithLabelValues(kind, result).Inc()
}

func (c *Collectors) ObserveDeliveries(event string, delivered, dropped int) {
	if c == nil {
		return
	}
	if delivered > 0 {
		c.Deliveries.WithLabelValues(event, ResultDelivered).Add(float64(delivered))
	}
	if dropped > 0 {
		c.Deliveries.WithLabelValues(event, ResultDropped).Add(float64(dropped))
	}
}

func (c *Collectors) ConnectionOpened() {
	if c == nil {
		return
	}
	c.Connections.Inc()
}

func (c *Collectors) ConnectionClosed() {
	if c == nil {
		return
	}
	c.Connections.Dec()
}
