// Package metrics exposes sysinventory cache behaviour and host readings to
// Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recomputation results
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// CacheMetrics records memoized value activity. It satisfies memo.Observer.
type CacheMetrics struct {
	hits           *prometheus.CounterVec
	misses         *prometheus.CounterVec
	recomputations *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// NewCacheMetrics creates the cache collectors and registers them with
// registerer. A nil registerer leaves them unregistered.
func NewCacheMetrics(namespace string, registerer prometheus.Registerer) (*CacheMetrics, error) {
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of reads served from a fresh cached value",
			},
			[]string{"name"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of reads that found no fresh cached value",
			},
			[]string{"name"},
		),
		recomputations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_recomputations_total",
				Help:      "Total number of supplier invocations by result",
			},
			[]string{"name", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_recompute_duration_seconds",
				Help:      "Time spent in the supplier per recomputation",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"name"},
		),
	}

	if registerer != nil {
		var err error
		if m.hits, err = registerOrReuse(registerer, m.hits); err != nil {
			return nil, err
		}
		if m.misses, err = registerOrReuse(registerer, m.misses); err != nil {
			return nil, err
		}
		if m.recomputations, err = registerOrReuse(registerer, m.recomputations); err != nil {
			return nil, err
		}
		if m.duration, err = registerOrReuse(registerer, m.duration); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// CacheHit records a read served from cache
func (m *CacheMetrics) CacheHit(name string) {
	m.hits.WithLabelValues(name).Inc()
}

// CacheMiss records a read that needed a recomputation
func (m *CacheMetrics) CacheMiss(name string) {
	m.misses.WithLabelValues(name).Inc()
}

// Recomputed records one supplier invocation
func (m *CacheMetrics) Recomputed(name string, elapsed time.Duration, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.recomputations.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// registerOrReuse registers c, or returns the equivalent collector that is
// already registered so several owners can share one registry
func registerOrReuse[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register collector: %w", err)
	}
	return c, nil
}
