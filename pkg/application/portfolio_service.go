package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// JobFailure records a job that could not be assessed.
type JobFailure struct {
	JobID string `json:"jobId"`
	Error string `json:"error"`
}

// PortfolioReport is the result of assessing every job.
type PortfolioReport struct {
	GeneratedAt time.Time                `json:"generatedAt"`
	Jobs        []finance.Assessment     `json:"jobs"`
	Changes     []finance.StatusChange   `json:"changes,omitempty"`
	Summary     finance.PortfolioSummary `json:"summary"`
	Failed      []JobFailure             `json:"failed,omitempty"`
}

// PortfolioService assesses all jobs with bounded concurrency and keeps the
// most recent report.
type PortfolioService struct {
	health    *HealthService
	publisher events.EventPublisher
	logger    *slog.Logger

	mu          sync.RWMutex
	concurrency int
	statuses    map[string]bool
	latest      *PortfolioReport
}

// NewPortfolioService creates a new portfolio service. Only jobs whose status
// is in statuses are assessed; an empty list assesses every job.
func NewPortfolioService(health *HealthService, publisher events.EventPublisher, concurrency int, statuses []string, logger *slog.Logger) *PortfolioService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PortfolioService{
		health:    health,
		publisher: publisher,
		logger:    logger,
	}
	s.Reconfigure(concurrency, statuses)
	return s
}

// Reconfigure replaces the concurrency limit and status filter. Runs already
// in progress keep their settings.
func (s *PortfolioService) Reconfigure(concurrency int, statuses []string) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	filter := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		filter[st] = true
	}
	s.mu.Lock()
	s.concurrency = concurrency
	s.statuses = filter
	s.mu.Unlock()
}

// Latest returns the most recent successful report, or nil before the first
// run completes.
func (s *PortfolioService) Latest() *PortfolioReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Assess evaluates every selected job. Jobs that fail are reported in
// Failed and left out of the summary; only a cancelled context or a failing
// job listing fails the whole run.
func (s *PortfolioService) Assess(ctx context.Context) (*PortfolioReport, error) {
	jobs, err := s.health.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	limit, statuses := s.concurrency, s.statuses
	s.mu.RUnlock()

	var (
		mu     sync.Mutex
		report = &PortfolioReport{GeneratedAt: s.health.now().UTC()}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, job := range jobs {
		if len(statuses) > 0 && !statuses[job.Status] {
			continue
		}
		g.Go(func() error {
			r, err := s.health.Assess(gctx, job.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("job assessment failed", "job_id", job.ID, "error", err)
				mu.Lock()
				report.Failed = append(report.Failed, JobFailure{JobID: job.ID, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			report.Jobs = append(report.Jobs, r.Assessment)
			if r.Change != nil {
				report.Changes = append(report.Changes, *r.Change)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("assess portfolio: %w", err)
	}

	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].JobID < report.Failed[j].JobID })
	sort.Slice(report.Changes, func(i, j int) bool { return report.Changes[i].JobID < report.Changes[j].JobID })
	finance.SortBySeverity(report.Jobs)
	report.Summary = finance.Summarize(report.Jobs)
	if report.Jobs == nil {
		report.Jobs = []finance.Assessment{}
	}

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	s.logger.Info("portfolio assessed", "jobs", len(report.Jobs), "failed", len(report.Failed), "changes", len(report.Changes))
	if s.publisher != nil {
		e := events.NewEvent(events.EventTypePortfolioRefreshed, events.AggregateTypePortfolio, "portfolio", map[string]interface{}{
			"jobs":     len(report.Jobs),
			"failed":   len(report.Failed),
			"critical": report.Summary.ByHealth[finance.HealthCritical],
			"at_risk":  report.Summary.ByHealth[finance.HealthAtRisk],
		})
		if err := s.publisher.Publish(e); err != nil {
			s.logger.Warn("publish event failed", "event_type", e.Type, "error", err)
		}
	}
	return report, nil
}

// Run assesses the portfolio immediately and then every interval until ctx
// ends. Failed runs are logged and retried on the next tick.
func (s *PortfolioService) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := s.Assess(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("portfolio refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
