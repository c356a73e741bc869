// Package health provides liveness, readiness and version endpoints.
//
//   - /health: the process is running
//   - /ready: every registered check passes (store reachable, budget
//     snapshot fresh)
//   - /version: build information
//
// Checks run concurrently, each bounded by the checker's timeout:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("store", store.Ping)
//	mux.HandleFunc("GET /ready", checker.ReadinessHandler())
package health
