package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/vanshika/cts-envipath/internal/graph"
	"github.com/vanshika/cts-envipath/internal/rules"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// GraphHealthService verifies the rule catalogue store is reachable.
type GraphHealthService struct {
	Client graph.Client
}

// Probe implements the HealthService interface.
func (s GraphHealthService) Probe(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	return s.Client.VerifyConnectivity(ctx)
}

// RuleTableHealth fails when a rule table was expected but none is loaded.
type RuleTableHealth struct {
	Table    rules.Table
	Required bool
}

// Probe implements the HealthService interface.
func (s RuleTableHealth) Probe(context.Context) error {
	if s.Required && len(s.Table) == 0 {
		return errors.New("rule table is empty")
	}
	return nil
}

// HealthChecks runs named probes in order and reports the first failure.
type HealthChecks []NamedCheck

// NamedCheck labels a probe in failure messages.
type NamedCheck struct {
	Name  string
	Check HealthService
}

// Probe implements the HealthService interface.
func (h HealthChecks) Probe(ctx context.Context) error {
	for _, c := range h {
		if c.Check == nil {
			continue
		}
		if err := c.Check.Probe(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}
