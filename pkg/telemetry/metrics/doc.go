// Package metrics owns the Prometheus registry of the service and the HTTP
// request metrics recorded by the API middleware.
//
// Domain metrics (spend, gate decisions, sweeps, notifications) live with
// the engine and register against Collector.Registry.
//
//	collector := metrics.NewCollector("spendcap")
//	mux.Handle("/metrics", collector.Handler())
package metrics
