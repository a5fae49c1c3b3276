package finance

import "time"

// Snapshot is the persisted record of one evaluation.
type Snapshot struct {
	ID                string       `json:"id"`
	JobID             string       `json:"jobId"`
	JobName           string       `json:"jobName"`
	TakenAt           time.Time    `json:"takenAt"`
	HealthStatus      HealthStatus `json:"healthStatus"`
	Priority          Priority     `json:"priority"`
	CPI               *float64     `json:"cpi"`
	BudgetUtilization float64      `json:"budgetUtilization"`
	ProgressPercent   float64      `json:"progressPercent"`
	Issues            []Issue      `json:"issues"`
	Degraded          []FeedName   `json:"degraded,omitempty"`
}

// NewSnapshot captures an assessment under the given ID.
func NewSnapshot(id string, a Assessment) Snapshot {
	issues := a.Health.Issues
	if issues == nil {
		issues = []Issue{}
	}
	return Snapshot{
		ID:                id,
		JobID:             a.JobID,
		JobName:           a.JobName,
		TakenAt:           a.EvaluatedAt,
		HealthStatus:      a.Health.HealthStatus,
		Priority:          a.Health.Priority,
		CPI:               a.Metrics.CPI,
		BudgetUtilization: a.Metrics.BudgetUtilization,
		ProgressPercent:   a.Metrics.ProgressPercent,
		Issues:            issues,
		Degraded:          a.Degraded,
	}
}

// StatusChange describes movement in health or priority between two
// evaluations of the same job.
type StatusChange struct {
	JobID        string       `json:"jobId"`
	JobName      string       `json:"jobName"`
	FromHealth   HealthStatus `json:"fromHealth"`
	ToHealth     HealthStatus `json:"toHealth"`
	FromPriority Priority     `json:"fromPriority"`
	ToPriority   Priority     `json:"toPriority"`
	Escalated    bool         `json:"escalated"`
}

// Compare returns the change from prev to cur, or nil when there is no
// previous snapshot or neither health nor priority moved.
func Compare(prev *Snapshot, cur Snapshot) *StatusChange {
	if prev == nil {
		return nil
	}
	if prev.HealthStatus == cur.HealthStatus && prev.Priority == cur.Priority {
		return nil
	}

	escalated := cur.HealthStatus.Rank() > prev.HealthStatus.Rank() ||
		(cur.HealthStatus == prev.HealthStatus && cur.Priority.Rank() > prev.Priority.Rank())

	return &StatusChange{
		JobID:        cur.JobID,
		JobName:      cur.JobName,
		FromHealth:   prev.HealthStatus,
		ToHealth:     cur.HealthStatus,
		FromPriority: prev.Priority,
		ToPriority:   cur.Priority,
		Escalated:    escalated,
	}
}
