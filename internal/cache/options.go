package cache

import "github.com/prometheus/client_golang/prometheus"

type options struct {
	registerer prometheus.Registerer
	component  string
}

// Option configures a Cache.
type Option func(*options)

// WithMetrics exports the cache counters to reg, labelled with component.
// Both must be set for metrics to be enabled.
func WithMetrics(reg prometheus.Registerer, component string) Option {
	return func(o *options) {
		o.registerer = reg
		o.component = component
	}
}
