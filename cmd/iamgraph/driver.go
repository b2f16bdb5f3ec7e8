package main

import (
	"context"
	"time"

	"github.com/vanshika/iamgraph/internal/graph"
	"github.com/vanshika/iamgraph/internal/observability"
)

const shutdownTimeout = 5 * time.Second

func connectNeo4j(ctx context.Context, a *app) (graph.Driver, error) {
	return graph.NewNeo4jDriver(ctx, a.logger, graph.Options{
		URI:              a.cfg.Graph.URI,
		Username:         a.cfg.Graph.Username,
		Password:         a.cfg.Graph.Password,
		MaxConnections:   a.cfg.Graph.MaxConnections,
		ConnectTimeout:   a.cfg.Graph.ConnectTimeout,
		TxTimeout:        a.cfg.Graph.TxTimeout,
		RetryMaxAttempts: a.cfg.Retry.MaxAttempts,
		RetryInitial:     a.cfg.Retry.InitialInterval,
		RetryMaxElapsed:  a.cfg.Retry.MaxElapsed,
		UserAgent:        "iamgraph/" + version,
	})
}

// connect opens the driver, wrapped with tracing when an OTLP endpoint is configured.
// The returned release func closes the driver and flushes spans.
func (a *app) connect(ctx context.Context) (graph.Driver, func(), error) {
	drv, err := a.newDriver(ctx, a)
	if err != nil {
		return nil, nil, WrapError(ExitDatabaseError, "failed to connect to the graph server", err)
	}
	a.logger.Info("connected to graph", "uri", a.cfg.Graph.URI, "database", a.cfg.Graph.Database)

	tp, err := observability.NewTracerProvider(ctx, a.cfg.Tracing, version)
	if err != nil {
		a.logger.Warn("tracing disabled", "error", err)
		tp = nil
	}
	if tp != nil && a.cfg.Tracing.Endpoint != "" {
		drv = observability.TraceDriver(drv, tp.Tracer(observability.InstrumentationName))
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := drv.Close(ctx); err != nil {
			a.logger.Warn("closing graph driver failed", "error", err)
		}
		if err := observability.Shutdown(ctx, tp); err != nil {
			a.logger.Warn("flushing traces failed", "error", err)
		}
	}
	return drv, release, nil
}
