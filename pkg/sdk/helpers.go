package sdk

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go/client"
	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
)

// DialStdio starts `<binary> mcp` as a child process, performs the
// handshake and checks schema compatibility.
func DialStdio(ctx context.Context, binary string, opts ...Option) (*Client, error) {
	transport, err := client.NewStdioTransport(binary, "mcp", "--transport", "stdio")
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	c := NewClient(transport, opts...)
	if _, err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := c.Compatible(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// JobsAtOrAbove returns the assessments in r whose health is at least min,
// keeping the report's severity order.
func JobsAtOrAbove(r *application.PortfolioReport, min finance.HealthStatus) []finance.Assessment {
	if r == nil {
		return nil
	}
	var out []finance.Assessment
	for _, a := range r.Jobs {
		if a.Health.HealthStatus.Rank() >= min.Rank() {
			out = append(out, a)
		}
	}
	return out
}

// CriticalJobs polls the portfolio and returns the jobs in critical health.
func (c *Client) CriticalJobs(ctx context.Context, refresh bool) ([]finance.Assessment, error) {
	r, err := c.PortfolioHealth(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return JobsAtOrAbove(r, finance.HealthCritical), nil
}
