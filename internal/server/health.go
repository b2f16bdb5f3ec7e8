package server

import (
	"context"

	"github.com/vanshika/iamgraph/internal/graph"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// GraphHealthService verifies database server connectivity as part of health checks.
type GraphHealthService struct {
	Driver graph.Driver
}

// Probe implements the HealthService interface.
func (s GraphHealthService) Probe(ctx context.Context) error {
	if s.Driver == nil {
		return nil
	}
	return s.Driver.VerifyConnectivity(ctx)
}
