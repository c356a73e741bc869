// Package server runs the spendcap HTTP server.
//
// The server owns only the listener lifecycle. Routes and middleware are
// built by package api and passed in as a handler.
//
// # Basic Usage
//
//	handler := api.NewRouter(api.Options{Engine: eng, SweepSecret: cfg.Security.SweepSecret})
//	srv := server.NewServer(cfg.Server, handler)
//
//	ctx := cli.SetupSignalHandler()
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Start returns once ctx is cancelled and in-flight requests have finished
// or ShutdownTimeout has elapsed, whichever comes first. Shutdown may also be
// called directly and is safe to call more than once.
package server
