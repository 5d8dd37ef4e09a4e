// Package metrics exposes the bot's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resellboost/internal/economy"
	"resellboost/internal/events"
)

const namespace = "resellboost"

// Metrics holds every collector on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	XPGranted         prometheus.Counter
	CommissionCredits prometheus.Counter
	Effects           *prometheus.CounterVec
	StoreOpDuration   *prometheus.HistogramVec
	CacheRequests     *prometheus.CounterVec
	Interactions      *prometheus.CounterVec
	AIRequests        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		XPGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_granted_total",
			Help:      "XP granted to members after boosts.",
		}),
		CommissionCredits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_credits_total",
			Help:      "Store credit paid out as affiliate commission.",
		}),
		Effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effects_total",
			Help:      "Economy effects published, by kind.",
		}, []string{"kind"}),
		StoreOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_op_duration_seconds",
			Help:      "Duration of user store operations.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"backend", "op"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Snapshot cache lookups, by result.",
		}, []string{"result"}),
		Interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Discord interactions handled, by kind and name.",
		}, []string{"kind", "name"}),
		AIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Generation requests, by purpose and result.",
		}, []string{"purpose", "result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.XPGranted,
		m.CommissionCredits,
		m.Effects,
		m.StoreOpDuration,
		m.CacheRequests,
		m.Interactions,
		m.AIRequests,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) ObserveStoreOp(backend, op string, d time.Duration) {
	m.StoreOpDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveInteraction(kind, name string) {
	m.Interactions.WithLabelValues(kind, name).Inc()
}

func (m *Metrics) ObserveAI(purpose string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AIRequests.WithLabelValues(purpose, result).Inc()
}

// Subscribe counts every effect published on bus.
func (m *Metrics) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.AllKinds, "metrics", m.record)
}

func (m *Metrics) record(e economy.Effect) {
	m.Effects.WithLabelValues(e.Kind()).Inc()
	switch v := e.(type) {
	case economy.XPGranted:
		if v.Final > 0 {
			m.XPGranted.Add(float64(v.Final))
		}
	case economy.CommissionEarned:
		if v.Amount > 0 {
			m.CommissionCredits.Add(v.Amount)
		}
	}
}
