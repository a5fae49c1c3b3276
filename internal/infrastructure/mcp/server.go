// Package mcp exposes job and portfolio health to MCP clients.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
)

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

const defaultHistoryLimit = 10

// HealthProvider answers per-job questions.
type HealthProvider interface {
	ListJobs(ctx context.Context) ([]finance.Job, error)
	Assess(ctx context.Context, jobID string) (*application.JobReport, error)
	History(ctx context.Context, jobID string, limit int) ([]finance.Snapshot, error)
}

// PortfolioProvider supplies portfolio reports.
type PortfolioProvider interface {
	Latest() *application.PortfolioReport
	Assess(ctx context.Context) (*application.PortfolioReport, error)
}

type Server struct {
	mcpServer *mcp.Server
	health    HealthProvider
	portfolio PortfolioProvider
	now       func() time.Time
	logger    *slog.Logger
}

// mcpErr returns a user-friendly error for MCP clients. Internal details are
// logged, not returned.
func mcpErr(friendly string) error {
	return errors.New(friendly)
}

func NewServer(health HealthProvider, portfolio PortfolioProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	info := mcp.ServerInfo{
		Name:    "sitepulse",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("SitePulse MCP Server"),
			mcp.WithDescription("SitePulse reports earned-value metrics and financial health for construction jobs."),
			mcp.WithWebsiteURL("https://github.com/felixgeelhaar/sitepulse"),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use portfolio_health for an overview, job_health for one job and job_history to see how a job's status moved. evaluate_bundle scores a feed bundle you already have."),
		),
		health:    health,
		portfolio: portfolio,
		now:       time.Now,
		logger:    logger,
	}

	s.registerTools()
	s.registerSchemaResource()
	return s
}

type JobArgs struct {
	JobID string `json:"job_id" jsonschema:"description=The job ID"`
}

type PortfolioArgs struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"description=Re-assess every job instead of returning the latest report"`
}

type HistoryArgs struct {
	JobID string `json:"job_id" jsonschema:"description=The job ID"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum snapshots to return, newest first (default: 10)"`
}

type EvaluateArgs struct {
	Bundle string `json:"bundle" jsonschema:"description=Feed bundle JSON document (see sitepulse://bundle-schema)"`
	Now    string `json:"now,omitempty" jsonschema:"description=Evaluation date as YYYY-MM-DD (default: today)"`
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("list_jobs").
		Description("List the jobs known to the feed source").
		Meta(map[string]any{"tag": tagJobs}).
		ReadOnly().
		Handler(s.handleListJobs)

	s.mcpServer.Tool("job_health").
		Description("Assess one job: metrics, labor and cost trend, health status, priority and issues").
		Meta(map[string]any{"tag": tagJobs}).
		Handler(s.handleJobHealth)

	s.mcpServer.Tool("portfolio_health").
		Description("Health summary of all active jobs, worst first").
		Meta(map[string]any{"tag": tagPortfolio}).
		Handler(s.handlePortfolioHealth)

	s.mcpServer.Tool("job_history").
		Description("Recorded health snapshots for a job, newest first").
		Meta(map[string]any{"tag": tagJobs}).
		ReadOnly().
		Handler(s.handleJobHistory)

	s.mcpServer.Tool("evaluate_bundle").
		Description("Evaluate a feed bundle document without contacting any feed source").
		Meta(map[string]any{"tag": tagEvaluation}).
		ReadOnly().
		Handler(s.handleEvaluateBundle)
}

func (s *Server) handleListJobs(ctx context.Context, args struct{}) (any, error) {
	jobs, err := s.health.ListJobs(ctx)
	if err != nil {
		s.logger.Warn("mcp list_jobs failed", "error", err)
		return nil, mcpErr("Failed to list jobs. Check the feed source configuration.")
	}
	if jobs == nil {
		jobs = []finance.Job{}
	}
	return jobs, nil
}

func (s *Server) handleJobHealth(ctx context.Context, args JobArgs) (any, error) {
	if args.JobID == "" {
		return nil, mcpErr("job_id is required.")
	}
	report, err := s.health.Assess(ctx, args.JobID)
	if err != nil {
		s.logger.Warn("mcp job_health failed", "job_id", args.JobID, "error", err)
		if errors.Is(err, feeds.ErrJobNotFound) {
			return nil, mcpErr(fmt.Sprintf("Job '%s' was not found. Use list_jobs to see valid IDs.", args.JobID))
		}
		return nil, mcpErr(fmt.Sprintf("Failed to assess job '%s'. The feed source may be unavailable.", args.JobID))
	}
	return report, nil
}

func (s *Server) handlePortfolioHealth(ctx context.Context, args PortfolioArgs) (any, error) {
	report := s.portfolio.Latest()
	if report != nil && !args.Refresh {
		return report, nil
	}
	report, err := s.portfolio.Assess(ctx)
	if err != nil {
		s.logger.Warn("mcp portfolio_health failed", "error", err)
		return nil, mcpErr("Failed to assess the portfolio. The feed source may be unavailable.")
	}
	return report, nil
}

func (s *Server) handleJobHistory(ctx context.Context, args HistoryArgs) (any, error) {
	if args.JobID == "" {
		return nil, mcpErr("job_id is required.")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	snaps, err := s.health.History(ctx, args.JobID, limit)
	if err != nil {
		s.logger.Warn("mcp job_history failed", "job_id", args.JobID, "error", err)
		return nil, mcpErr("Failed to load history. Ensure history is enabled in .sitepulse/config.yaml.")
	}
	if snaps == nil {
		snaps = []finance.Snapshot{}
	}
	return snaps, nil
}

func (s *Server) handleEvaluateBundle(ctx context.Context, args EvaluateArgs) (any, error) {
	bundle, err := feeds.DecodeBundle([]byte(args.Bundle))
	if err != nil {
		return nil, mcpErr(fmt.Sprintf("Bundle is not valid: %v", err))
	}
	now := s.now()
	if args.Now != "" {
		d, ok := finance.ParseDate(args.Now)
		if !ok {
			return nil, mcpErr("now must be a date in YYYY-MM-DD form.")
		}
		now = d.Time
	}
	return finance.Evaluate(bundle, now), nil
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}

func (s *Server) ServeWebSocket(ctx context.Context, addr string) error {
	return mcp.ServeWebSocket(ctx, s.mcpServer, addr)
}

func (s *Server) ServeGRPC(ctx context.Context, addr string) error {
	return mcp.ServeGRPC(ctx, s.mcpServer, addr)
}
