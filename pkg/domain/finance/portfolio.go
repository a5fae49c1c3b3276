package finance

import (
	"sort"
	"strings"
)

// JobIssue pairs a job with its top issue.
type JobIssue struct {
	JobID    string       `json:"jobId"`
	JobName  string       `json:"jobName"`
	Health   HealthStatus `json:"health"`
	Priority Priority     `json:"priority"`
	Issue    Issue        `json:"issue"`
}

// PortfolioSummary rolls up assessments across jobs.
type PortfolioSummary struct {
	JobCount           int                  `json:"jobCount"`
	ByHealth           map[HealthStatus]int `json:"byHealth"`
	ByPriority         map[Priority]int     `json:"byPriority"`
	TotalContractValue float64              `json:"totalContractValue"`
	TotalActualCost    float64              `json:"totalActualCost"`
	TotalEarnedValue   float64              `json:"totalEarnedValue"`
	TotalOutstandingAP float64              `json:"totalOutstandingAP"`

	// PortfolioCPI is total earned value over total actual cost, nil without cost.
	PortfolioCPI *float64   `json:"portfolioCpi"`
	TopIssues    []JobIssue `json:"topIssues"`
}

// Summarize aggregates assessments. TopIssues follows severity order.
func Summarize(assessments []Assessment) PortfolioSummary {
	s := PortfolioSummary{
		JobCount:   len(assessments),
		ByHealth:   map[HealthStatus]int{HealthGood: 0, HealthAtRisk: 0, HealthCritical: 0},
		ByPriority: map[Priority]int{PriorityLow: 0, PriorityMedium: 0, PriorityHigh: 0, PriorityCritical: 0},
		TopIssues:  []JobIssue{},
	}

	sorted := make([]Assessment, len(assessments))
	copy(sorted, assessments)
	SortBySeverity(sorted)

	for _, a := range sorted {
		s.ByHealth[a.Health.HealthStatus]++
		s.ByPriority[a.Health.Priority]++
		s.TotalContractValue += a.Metrics.ContractValue
		s.TotalActualCost += a.Metrics.ActualCost
		s.TotalEarnedValue += a.Metrics.EarnedValue
		s.TotalOutstandingAP += a.Metrics.OutstandingAP

		if issue, ok := a.Health.TopIssue(); ok {
			s.TopIssues = append(s.TopIssues, JobIssue{
				JobID:    a.JobID,
				JobName:  a.JobName,
				Health:   a.Health.HealthStatus,
				Priority: a.Health.Priority,
				Issue:    issue,
			})
		}
	}

	if s.TotalActualCost > 0 {
		cpi := s.TotalEarnedValue / s.TotalActualCost
		s.PortfolioCPI = &cpi
	}
	return s
}

// SortBySeverity orders assessments worst first: health, then priority, then
// job name.
func SortBySeverity(assessments []Assessment) {
	sort.SliceStable(assessments, func(i, j int) bool {
		a, b := assessments[i].Health, assessments[j].Health
		if a.HealthStatus.Rank() != b.HealthStatus.Rank() {
			return a.HealthStatus.Rank() > b.HealthStatus.Rank()
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		return strings.ToLower(assessments[i].JobName) < strings.ToLower(assessments[j].JobName)
	})
}
