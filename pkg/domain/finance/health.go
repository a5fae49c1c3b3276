package finance

import "fmt"

// HealthStatus is the overall job classification.
type HealthStatus string

const (
	HealthGood     HealthStatus = "good"
	HealthAtRisk   HealthStatus = "at-risk"
	HealthCritical HealthStatus = "critical"
)

// Rank orders health statuses from good (0) to critical (2).
func (h HealthStatus) Rank() int {
	switch h {
	case HealthAtRisk:
		return 1
	case HealthCritical:
		return 2
	default:
		return 0
	}
}

// Priority is how urgently a job needs attention.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities from low (0) to critical (3).
func (p Priority) Rank() int {
	switch p {
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 0
	}
}

type IssueType string

const (
	IssueFinancial  IssueType = "financial"
	IssueSafety     IssueType = "safety"
	IssueOperations IssueType = "operations"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is one finding with a suggested remediation.
type Issue struct {
	Rule     string    `json:"rule"`
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Action   string    `json:"action"`
}

// JobHealth is the classification result. Issues are in rule order, so
// Issues[0] is the top issue.
type JobHealth struct {
	HealthStatus HealthStatus `json:"healthStatus"`
	Priority     Priority     `json:"priority"`
	Issues       []Issue      `json:"issues"`
	IsHealthy    bool         `json:"isHealthy"`
}

// TopIssue returns the first issue, if any.
func (h JobHealth) TopIssue() (Issue, bool) {
	if len(h.Issues) == 0 {
		return Issue{}, false
	}
	return h.Issues[0], true
}

// Classification thresholds.
const (
	CPICriticalBelow        = 0.9
	CPITarget               = 1.0
	BudgetCriticalAbove     = 90.0
	BudgetWarningAbove      = 75.0
	ProgressCriticalBelow   = 90.0
	ProgressWarningBelow    = 75.0
	LaborDeclineCutoffBelow = 90.0
)

type healthRule struct {
	name     string
	match    func(m FinancialMetrics) bool
	issue    func(m FinancialMetrics) Issue
	priority Priority
	health   HealthStatus
}

// rules are evaluated in order; every match contributes an issue.
var rules = []healthRule{
	{
		name: "cpi-critical",
		match: func(m FinancialMetrics) bool {
			cpi := m.CPIValue()
			return cpi > 0 && cpi < CPICriticalBelow
		},
		issue: func(m FinancialMetrics) Issue {
			return Issue{
				Type:     IssueFinancial,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("Over budget: CPI at %.2f", m.CPIValue()),
				Action:   "Review cost overruns and adjust spending",
			}
		},
		priority: PriorityCritical,
		health:   HealthCritical,
	},
	{
		name: "cpi-at-risk",
		match: func(m FinancialMetrics) bool {
			cpi := m.CPIValue()
			return cpi > 0 && cpi >= CPICriticalBelow && cpi < CPITarget
		},
		issue: func(m FinancialMetrics) Issue {
			return Issue{
				Type:     IssueFinancial,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("At risk of going over budget: CPI at %.2f", m.CPIValue()),
				Action:   "Monitor costs closely",
			}
		},
		priority: PriorityHigh,
		health:   HealthAtRisk,
	},
	{
		name: "budget-critical",
		match: func(m FinancialMetrics) bool {
			return m.BudgetUtilization > BudgetCriticalAbove && m.ProgressPercent < ProgressCriticalBelow
		},
		issue: func(m FinancialMetrics) Issue {
			return Issue{
				Type:     IssueFinancial,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("Budget nearly exhausted: %.0f%% spent at %.0f%% complete", m.BudgetUtilization, m.ProgressPercent),
				Action:   "Freeze discretionary spending and re-forecast cost to complete",
			}
		},
		priority: PriorityCritical,
		health:   HealthCritical,
	},
	{
		name: "budget-ahead-of-progress",
		match: func(m FinancialMetrics) bool {
			return m.BudgetUtilization > BudgetWarningAbove && m.ProgressPercent < ProgressWarningBelow
		},
		issue: func(m FinancialMetrics) Issue {
			return Issue{
				Type:     IssueFinancial,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Spending ahead of progress: %.0f%% spent at %.0f%% complete", m.BudgetUtilization, m.ProgressPercent),
				Action:   "Review the cost-to-complete forecast",
			}
		},
		priority: PriorityHigh,
		health:   HealthAtRisk,
	},
	{
		name: "safety-incidents",
		match: func(m FinancialMetrics) bool {
			return m.SafetyIncidentCount > 0
		},
		issue: func(m FinancialMetrics) Issue {
			noun := "incidents"
			if m.SafetyIncidentCount == 1 {
				noun = "incident"
			}
			return Issue{
				Type:     IssueSafety,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("%d safety %s reported", m.SafetyIncidentCount, noun),
				Action:   "Review safety protocols with the crew",
			}
		},
		priority: PriorityHigh,
		health:   HealthAtRisk,
	},
	{
		name: "labor-declining",
		match: func(m FinancialMetrics) bool {
			return m.LaborTrendStatus == LaborDecreasing && m.ProgressPercent < LaborDeclineCutoffBelow
		},
		issue: func(m FinancialMetrics) Issue {
			return Issue{
				Type:     IssueOperations,
				Severity: SeverityWarning,
				Message:  "Labor hours declining month over month",
				Action:   "Verify crew allocation against the schedule",
			}
		},
		priority: PriorityMedium,
		health:   HealthAtRisk,
	},
	{
		name: "cost-spike",
		match: func(m FinancialMetrics) bool {
			return m.CostTrendStatus == CostHigh
		},
		issue: func(m FinancialMetrics) Issue {
			return Issue{
				Type:     IssueFinancial,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Costs up %.0f%% month over month", m.CostChangePercent),
				Action:   "Investigate the recent cost increase",
			}
		},
		priority: PriorityHigh,
		health:   HealthAtRisk,
	},
}

// ClassifyJobHealth applies the rules in order. Health and priority only ever
// escalate; each matching rule appends its issue.
func ClassifyJobHealth(m FinancialMetrics) JobHealth {
	health := mustLadder(newHealthLadder())
	priority := mustLadder(newPriorityLadder())

	issues := []Issue{}
	for _, r := range rules {
		if !r.match(m) {
			continue
		}
		issue := r.issue(m)
		issue.Rule = r.name
		issues = append(issues, issue)
		health.Raise(string(r.health))
		priority.Raise(string(r.priority))
	}

	status := HealthStatus(health.Current())
	return JobHealth{
		HealthStatus: status,
		Priority:     Priority(priority.Current()),
		Issues:       issues,
		IsHealthy:    status == HealthGood && len(issues) == 0,
	}
}

// mustLadder unwraps a ladder constructor. Both machines are built once in
// init, so a failure here cannot happen at runtime.
func mustLadder(l *ladder, err error) *ladder {
	if err != nil {
		panic(err)
	}
	return l
}
