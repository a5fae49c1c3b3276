package inbound

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/sitepulse/pkg/application"
)

// JobAssessor re-assesses a single job.
type JobAssessor interface {
	Assess(ctx context.Context, jobID string) (*application.JobReport, error)
}

// AssessProcessor re-assesses the job named by each change notification.
// The assessment records a snapshot and publishes the usual health events.
type AssessProcessor struct {
	assessor JobAssessor
	logger   *slog.Logger
}

// NewAssessProcessor creates a processor backed by assessor.
func NewAssessProcessor(assessor JobAssessor, logger *slog.Logger) *AssessProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssessProcessor{assessor: assessor, logger: logger}
}

// ProcessEvent implements EventProcessor. Pings are acknowledged without work.
func (p *AssessProcessor) ProcessEvent(ctx context.Context, event *Event) error {
	if event.EventType == EventPing || event.JobID == "" {
		return nil
	}
	report, err := p.assessor.Assess(ctx, event.JobID)
	if err != nil {
		return fmt.Errorf("assess %s: %w", event.JobID, err)
	}
	p.logger.Debug("job re-assessed on change notification",
		"job_id", event.JobID, "feed", event.Feed, "health", report.Assessment.Health.HealthStatus)
	return nil
}
