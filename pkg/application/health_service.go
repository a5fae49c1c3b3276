package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
	"github.com/google/uuid"
)

// HistoryRepository persists health snapshots.
type HistoryRepository interface {
	Append(ctx context.Context, snap finance.Snapshot) error
	Latest(ctx context.Context, jobID string) (*finance.Snapshot, error)
	List(ctx context.Context, jobID string, limit int) ([]finance.Snapshot, error)
}

// JobReport is the outcome of assessing one job.
type JobReport struct {
	Assessment finance.Assessment    `json:"assessment"`
	Snapshot   finance.Snapshot      `json:"snapshot"`
	Change     *finance.StatusChange `json:"change,omitempty"`
}

// HealthService evaluates jobs, records snapshots and announces changes.
type HealthService struct {
	source    feeds.Source
	history   HistoryRepository
	publisher events.EventPublisher
	now       func() time.Time
	logger    *slog.Logger
	locks     jobLocks
}

// NewHealthService creates a new health service. history and publisher may
// be nil, in which case nothing is persisted or published.
func NewHealthService(source feeds.Source, history HistoryRepository, publisher events.EventPublisher, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		source:    source,
		history:   history,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source used as the evaluation date.
func (s *HealthService) SetClock(now func() time.Time) {
	s.now = now
}

// ListJobs returns the jobs known to the feed source.
func (s *HealthService) ListJobs(ctx context.Context) ([]finance.Job, error) {
	jobs, err := s.source.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Assess fetches the feeds for jobID and evaluates them.
func (s *HealthService) Assess(ctx context.Context, jobID string) (*JobReport, error) {
	bundle, err := s.source.FetchBundle(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch feeds for %s: %w", jobID, err)
	}
	return s.AssessBundle(ctx, bundle)
}

// AssessBundle evaluates an already fetched bundle, records a snapshot and
// publishes the resulting events. Assessments of the same job are
// serialized so each status change is detected and announced once.
func (s *HealthService) AssessBundle(ctx context.Context, bundle finance.FeedBundle) (*JobReport, error) {
	unlock := s.locks.lock(bundle.JobID)
	defer unlock()

	a := finance.Evaluate(bundle, s.now())
	report := &JobReport{
		Assessment: a,
		Snapshot:   finance.NewSnapshot(uuid.New().String(), a),
	}

	if s.history != nil {
		prev, err := s.history.Latest(ctx, a.JobID)
		if err != nil {
			return nil, fmt.Errorf("load previous snapshot: %w", err)
		}
		report.Change = finance.Compare(prev, report.Snapshot)
		if err := s.history.Append(ctx, report.Snapshot); err != nil {
			return nil, fmt.Errorf("save snapshot: %w", err)
		}
	}

	s.logger.Debug("job evaluated",
		"job_id", a.JobID,
		"health", a.Health.HealthStatus,
		"priority", a.Health.Priority,
		"issues", len(a.Health.Issues),
	)
	s.announce(report)
	return report, nil
}

// History returns up to limit snapshots for jobID, newest first.
func (s *HealthService) History(ctx context.Context, jobID string, limit int) ([]finance.Snapshot, error) {
	if s.history == nil {
		return nil, nil
	}
	snaps, err := s.history.List(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", jobID, err)
	}
	return snaps, nil
}

func (s *HealthService) announce(r *JobReport) {
	if s.publisher == nil {
		return
	}
	a := r.Assessment

	s.publish(events.NewEvent(events.EventTypeHealthEvaluated, events.AggregateTypeJob, a.JobID, map[string]interface{}{
		"job_name":    a.JobName,
		"snapshot_id": r.Snapshot.ID,
		"health":      string(a.Health.HealthStatus),
		"priority":    string(a.Health.Priority),
		"issues":      len(a.Health.Issues),
	}))

	if len(a.Degraded) > 0 {
		names := make([]string, len(a.Degraded))
		for i, f := range a.Degraded {
			names[i] = string(f)
		}
		s.logger.Warn("evaluated with degraded feeds", "job_id", a.JobID, "feeds", names)
		s.publish(events.NewEvent(events.EventTypeFeedDegraded, events.AggregateTypeJob, a.JobID, map[string]interface{}{
			"job_name": a.JobName,
			"feeds":    names,
		}))
	}

	if c := r.Change; c != nil {
		s.logger.Info("job health changed",
			"job_id", c.JobID,
			"from", c.FromHealth,
			"to", c.ToHealth,
			"escalated", c.Escalated,
		)
		s.publish(events.NewEvent(events.EventTypeHealthChanged, events.AggregateTypeJob, c.JobID, map[string]interface{}{
			"job_name":      c.JobName,
			"from_health":   string(c.FromHealth),
			"to_health":     string(c.ToHealth),
			"from_priority": string(c.FromPriority),
			"to_priority":   string(c.ToPriority),
			"escalated":     c.Escalated,
		}))
	}
}

func (s *HealthService) publish(e *events.BaseEvent) {
	if err := s.publisher.Publish(e); err != nil {
		s.logger.Warn("publish event failed", "event_type", e.Type, "error", err)
	}
}

// jobLocks hands out one mutex per job ID. Entries are dropped when the
// last holder releases them.
type jobLocks struct {
	mu    sync.Mutex
	byJob map[string]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

func (l *jobLocks) lock(jobID string) func() {
	l.mu.Lock()
	if l.byJob == nil {
		l.byJob = make(map[string]*jobLock)
	}
	jl, ok := l.byJob[jobID]
	if !ok {
		jl = &jobLock{}
		l.byJob[jobID] = jl
	}
	jl.refs++
	l.mu.Unlock()

	jl.mu.Lock()
	return func() {
		jl.mu.Unlock()
		l.mu.Lock()
		jl.refs--
		if jl.refs == 0 {
			delete(l.byJob, jobID)
		}
		l.mu.Unlock()
	}
}
