package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// Outcome labels beyond the two decision outcomes.
const (
	OutcomeUnavailable   = "unavailable"
	OutcomeIndeterminate = "indeterminate"
	OutcomeError         = "error"
)

// Registry holds the rate limiter's Prometheus collectors.
type Registry struct {
	gatherer prometheus.Gatherer
	hits     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRegistry registers the collectors on a fresh Prometheus registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Registry{
		gatherer: reg,
		hits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_hits_total",
			Help: "Hits recorded by the rate limiter, by scope and outcome.",
		}, []string{"scope", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_hit_duration_seconds",
			Help:    "Time spent recording a hit, including the store round-trip.",
			Buckets: prometheus.DefBuckets,
		}, []string{"scope"}),
	}
}

// ObserveHit records the outcome and latency of one hit.
func (r *Registry) ObserveHit(scope string, decision ratelimit.Decision, err error, elapsed time.Duration) {
	r.hits.WithLabelValues(scope, OutcomeLabel(decision, err)).Inc()
	r.duration.WithLabelValues(scope).Observe(elapsed.Seconds())
}

// Hits returns the counter for scope and outcome.
func (r *Registry) Hits(scope, outcome string) prometheus.Counter {
	return r.hits.WithLabelValues(scope, outcome)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// OutcomeLabel maps a hit result to its metric label.
func OutcomeLabel(decision ratelimit.Decision, err error) string {
	switch {
	case err == nil:
		return decision.Outcome.String()
	case errors.Is(err, ratelimit.ErrIndeterminate):
		return OutcomeIndeterminate
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
