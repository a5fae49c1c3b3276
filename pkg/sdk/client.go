package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/mcp-go/client"
	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
)

const (
	schemaURI       = "sitepulse://schema"
	bundleSchemaURI = "sitepulse://bundle-schema"
)

// Client is a typed Go client for the SitePulse MCP server.
type Client struct {
	mcp      *client.Client
	retryCfg retry.Config
	timeout  time.Duration
}

// NewClient creates a new SDK client wrapping the given MCP transport.
func NewClient(transport client.Transport, opts ...Option) *Client {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Client{
		mcp:     client.New(transport, client.WithTimeout(o.timeout)),
		timeout: o.timeout,
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Initialize performs the MCP initialize handshake.
func (c *Client) Initialize(ctx context.Context) (*client.ServerInfo, error) {
	return c.mcp.Initialize(ctx)
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// call invokes a tool with retry.
func (c *Client) call(ctx context.Context, tool string, args map[string]any) (*client.ToolResult, error) {
	r := retry.New[*client.ToolResult](c.retryCfg)
	result, err := r.Do(ctx, func(ctx context.Context) (*client.ToolResult, error) {
		return c.mcp.CallTool(ctx, tool, args)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", tool, err)
	}
	if result.IsError {
		msg := ""
		if len(result.Content) > 0 {
			msg = result.Content[0].Text
		}
		return nil, &ToolError{Tool: tool, Message: msg}
	}
	return result, nil
}

// unmarshalText extracts Content[0].Text from a tool result and unmarshals it as JSON.
func unmarshalText[T any](result *client.ToolResult) (*T, error) {
	text, err := textResult(result)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &v, nil
}

// textResult extracts Content[0].Text from a tool result.
func textResult(result *client.ToolResult) (string, error) {
	if len(result.Content) == 0 {
		return "", ErrNoContent
	}
	return result.Content[0].Text, nil
}

// --- Schema ---

// GetSchema reads the sitepulse://schema resource from the server.
func (c *Client) GetSchema(ctx context.Context) (*SchemaInfo, error) {
	rc, err := c.mcp.ReadResource(ctx, schemaURI)
	if err != nil {
		return nil, fmt.Errorf("read schema resource: %w", err)
	}
	var info SchemaInfo
	if err := json.Unmarshal([]byte(rc.Text), &info); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return &info, nil
}

// BundleSchema returns the JSON Schema that evaluate_bundle validates against.
func (c *Client) BundleSchema(ctx context.Context) (string, error) {
	rc, err := c.mcp.ReadResource(ctx, bundleSchemaURI)
	if err != nil {
		return "", fmt.Errorf("read bundle schema resource: %w", err)
	}
	return rc.Text, nil
}

// Compatible checks if the server schema is compatible with this SDK version.
// Returns nil if compatible, an error wrapping ErrIncompatible if not.
func (c *Client) Compatible(ctx context.Context) error {
	info, err := c.GetSchema(ctx)
	if err != nil {
		return fmt.Errorf("check compatibility: %w", err)
	}
	serverMajor := majorVersion(info.SchemaVersion)
	if serverMajor != SupportedSchemaMajor {
		return fmt.Errorf("%w: server=%s (major %s), sdk supports major %s",
			ErrIncompatible, info.SchemaVersion, serverMajor, SupportedSchemaMajor)
	}
	return nil
}

// majorVersion extracts the major version from a semver string.
func majorVersion(v string) string {
	for i, ch := range v {
		if ch == '.' {
			return v[:i]
		}
	}
	return v
}

// --- Jobs ---

// ListJobs returns every job the server's feed source knows.
func (c *Client) ListJobs(ctx context.Context) ([]finance.Job, error) {
	res, err := c.call(ctx, "list_jobs", nil)
	if err != nil {
		return nil, err
	}
	jobs, err := unmarshalText[[]finance.Job](res)
	if err != nil {
		return nil, err
	}
	return *jobs, nil
}

// JobHealth assesses one job. The server records a snapshot as a side effect.
func (c *Client) JobHealth(ctx context.Context, jobID string) (*application.JobReport, error) {
	res, err := c.call(ctx, "job_health", map[string]any{"job_id": jobID})
	if err != nil {
		return nil, err
	}
	return unmarshalText[application.JobReport](res)
}

// JobHistory returns up to limit snapshots for a job, newest first. A
// non-positive limit uses the server default.
func (c *Client) JobHistory(ctx context.Context, jobID string, limit int) ([]finance.Snapshot, error) {
	args := map[string]any{"job_id": jobID}
	if limit > 0 {
		args["limit"] = limit
	}
	res, err := c.call(ctx, "job_history", args)
	if err != nil {
		return nil, err
	}
	snaps, err := unmarshalText[[]finance.Snapshot](res)
	if err != nil {
		return nil, err
	}
	return *snaps, nil
}

// --- Portfolio ---

// PortfolioHealth returns the server's latest portfolio report. With refresh
// set, or when the server has none yet, every job is re-assessed.
func (c *Client) PortfolioHealth(ctx context.Context, refresh bool) (*application.PortfolioReport, error) {
	var args map[string]any
	if refresh {
		args = map[string]any{"refresh": true}
	}
	res, err := c.call(ctx, "portfolio_health", args)
	if err != nil {
		return nil, err
	}
	return unmarshalText[application.PortfolioReport](res)
}

// --- Offline evaluation ---

// EvaluateBundle evaluates a bundle document on the server without touching
// its feed source or history. now is an optional YYYY-MM-DD date.
func (c *Client) EvaluateBundle(ctx context.Context, bundle []byte, now string) (*finance.Assessment, error) {
	args := map[string]any{"bundle": string(bundle)}
	if now != "" {
		args["now"] = now
	}
	res, err := c.call(ctx, "evaluate_bundle", args)
	if err != nil {
		return nil, err
	}
	return unmarshalText[finance.Assessment](res)
}
