package cache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// cacheMetrics holds Prometheus metrics for cache operations.
type cacheMetrics struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	sets    prometheus.Counter
	deletes prometheus.Counter
	size    prometheus.Gauge
}

func newCacheMetrics(reg prometheus.Registerer, component string) (*cacheMetrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ocket",
			Subsystem:   "cache",
			Name:        name,
			ConstLabels: prometheus.Labels{"component": component},
			Help:        help,
		})
	}

	m := &cacheMetrics{
		hits:    counter("hits_total", "Total number of cache hits"),
		misses:  counter("misses_total", "Total number of cache misses"),
		sets:    counter("sets_total", "Total number of cache set operations"),
		deletes: counter("deletes_total", "Total number of entries removed from the cache"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ocket",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Current number of entries in cache",
		}),
	}

	var err error
	if m.hits, err = registerCounter(reg, m.hits); err != nil {
		return nil, err
	}
	if m.misses, err = registerCounter(reg, m.misses); err != nil {
		return nil, err
	}
	if m.sets, err = registerCounter(reg, m.sets); err != nil {
		return nil, err
	}
	if m.deletes, err = registerCounter(reg, m.deletes); err != nil {
		return nil, err
	}
	if err := reg.Register(m.size); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.size = are.ExistingCollector.(prometheus.Gauge)
	}
	return m, nil
}

// registerCounter registers c, reusing an identical counter that is
// already registered under the same name and labels.
func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func (m *cacheMetrics) recordHit()          { m.hits.Inc() }
func (m *cacheMetrics) recordMiss()         { m.misses.Inc() }
func (m *cacheMetrics) recordSet()          { m.sets.Inc() }
func (m *cacheMetrics) recordDelete(n int)  { m.deletes.Add(float64(n)) }
func (m *cacheMetrics) updateSize(size int) { m.size.Set(float64(size)) }
