package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector wraps a dedicated Prometheus registry. Nothing is registered on
// the global default registry.
type Collector struct {
	namespace string
	registry  *prometheus.Registry
	requests  *RequestMetrics
}

// NewCollector creates a registry with the Go runtime and process
// collectors and the HTTP request metrics.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "spendcap"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		namespace: namespace,
		registry:  registry,
		requests:  NewRequestMetrics(namespace, registry),
	}
}

// Registry returns the registry for components that define their own
// metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Namespace returns the metric name prefix.
func (c *Collector) Namespace() string {
	return c.namespace
}

// Requests returns the HTTP request metrics.
func (c *Collector) Requests() *RequestMetrics {
	return c.requests
}
