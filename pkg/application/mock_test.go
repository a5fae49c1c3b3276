package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
)

type MockSource struct {
	mu      sync.Mutex
	Jobs    []finance.Job
	Bundles map[string]finance.FeedBundle
	Errors  map[string]error
	ListErr error
}

func (m *MockSource) ListJobs(ctx context.Context) ([]finance.Job, error) {
	return m.Jobs, m.ListErr
}

func (m *MockSource) FetchBundle(ctx context.Context, jobID string) (finance.FeedBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return finance.FeedBundle{}, err
	}
	if err, ok := m.Errors[jobID]; ok {
		return finance.FeedBundle{}, err
	}
	b, ok := m.Bundles[jobID]
	if !ok {
		return finance.FeedBundle{}, feeds.ErrJobNotFound
	}
	return b, nil
}

type MockHistory struct {
	mu        sync.Mutex
	Snapshots []finance.Snapshot
	AppendErr error
	// LatestDelay widens the window between reading the previous snapshot
	// and appending the next one.
	LatestDelay time.Duration
}

func (m *MockHistory) Append(ctx context.Context, snap finance.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Snapshots = append(m.Snapshots, snap)
	return nil
}

func (m *MockHistory) Latest(ctx context.Context, jobID string) (*finance.Snapshot, error) {
	if m.LatestDelay > 0 {
		time.Sleep(m.LatestDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Snapshots) - 1; i >= 0; i-- {
		if m.Snapshots[i].JobID == jobID {
			s := m.Snapshots[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (m *MockHistory) List(ctx context.Context, jobID string, limit int) ([]finance.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []finance.Snapshot
	for i := len(m.Snapshots) - 1; i >= 0; i-- {
		if m.Snapshots[i].JobID == jobID {
			out = append(out, m.Snapshots[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type RecordingPublisher struct {
	mu     sync.Mutex
	Events []*events.BaseEvent
}

func (p *RecordingPublisher) Publish(e *events.BaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, e)
	return nil
}

// Count returns how many events of eventType were published.
func (p *RecordingPublisher) Count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.Events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (p *RecordingPublisher) Subscribe(events.EventHandler) {}

func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.Events))
	for i, e := range p.Events {
		types[i] = e.Type
	}
	sort.Strings(types)
	return types
}

var errUpstream = errors.New("upstream exploded")

func healthyBundle(id, name string) finance.FeedBundle {
	cpi := 1.05
	return finance.FeedBundle{
		JobID:      id,
		Job:        &finance.Job{ID: id, Name: name, Status: "active", PlannedStartDate: finance.NewDate(2024, 1, 1)},
		EVM:        &finance.EVMFeed{Totals: finance.EVMTotals{CPI: &cpi, ActualCost: 100000, EarnedValue: 105000}},
		APRegister: &finance.APRegisterFeed{},
		Timelog:    &finance.TimelogFeed{},
		SOV:        &finance.SOVFeed{Data: finance.SOVData{Summary: finance.SOVSummary{TotalValue: 1000000}}},
		ProgressReports: &finance.ProgressReportsFeed{Data: []finance.ProgressReport{
			{ReportNumber: 1, ReportDate: finance.NewDate(2024, 3, 1), Status: finance.ProgressReportStatusApproved, Summary: finance.ProgressSummary{CalculatedPercentCTD: 12}},
		}},
		Forecasts: &finance.ForecastsFeed{},
	}
}

func criticalBundle(id, name string) finance.FeedBundle {
	b := healthyBundle(id, name)
	cpi := 0.8
	b.EVM.Totals.CPI = &cpi
	b.EVM.Totals.ActualCost = 500000
	b.EVM.Totals.EarnedValue = 400000
	return b
}
