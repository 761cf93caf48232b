package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reusee/revtape/cmds"
	"github.com/reusee/revtape/logs"
)

var metricsAddr = cmds.Var[string]("-metrics", "serve prometheus metrics on addr while running")

// serveMetrics returns a func that shuts the server down.
func serveMetrics(ctx context.Context, logger logs.Logger, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "metrics server", "error", err)
		}
	}()
	logger.InfoContext(ctx, "serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}
