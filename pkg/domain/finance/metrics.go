package finance

import "fmt"

// FinancialMetrics is derived from FinancialInputs and a Trend on every call.
type FinancialMetrics struct {
	// CPI is nil when the earned value report carried none.
	CPI          *float64 `json:"cpi"`
	CostVariance float64  `json:"costVariance"`

	// BudgetUtilization is actual cost as a percent of the SOV budget. It is 0
	// when there is no budget; BudgetAvailable tells the two apart.
	BudgetUtilization float64 `json:"budgetUtilization"`
	BudgetAvailable   bool    `json:"budgetAvailable"`
	RemainingBudget   float64 `json:"remainingBudget"`

	OutstandingAP float64 `json:"outstandingAP"`

	// MarginAtCompletion is nil when no forecast has been computed, which is
	// not the same as a forecast of zero margin.
	MarginAtCompletion        *float64 `json:"marginAtCompletion"`
	MarginAtCompletionPercent *float64 `json:"marginAtCompletionPercent"`

	ProgressPercent     float64    `json:"progressPercent"`
	LaborTrendStatus    LaborTrend `json:"laborTrendStatus"`
	CostTrendStatus     CostTrend  `json:"costTrendStatus"`
	CostChangePercent   float64    `json:"costChangePercent"`
	SafetyIncidentCount int        `json:"safetyIncidentCount"`

	ActualCost    float64 `json:"actualCost"`
	EarnedValue   float64 `json:"earnedValue"`
	ContractValue float64 `json:"contractValue"`
	TotalHours    float64 `json:"totalHours"`

	// Anomalies lists values that look wrong upstream. They are reported,
	// never corrected.
	Anomalies []string `json:"anomalies,omitempty"`
}

// CPIValue returns the CPI, or 0 when unavailable.
func (m FinancialMetrics) CPIValue() float64 {
	if m.CPI == nil {
		return 0
	}
	return *m.CPI
}

// ComputeFinancialMetrics derives the metrics. Every division is guarded.
func ComputeFinancialMetrics(in FinancialInputs, tr Trend) FinancialMetrics {
	m := FinancialMetrics{
		CPI:                 in.CPI,
		CostVariance:        in.CostVariance,
		RemainingBudget:     in.TotalBudget - in.ActualCost,
		OutstandingAP:       in.APTotalAmount - in.APPaidAmount,
		ProgressPercent:     in.ProgressPercent,
		LaborTrendStatus:    tr.LaborStatus,
		CostTrendStatus:     tr.CostStatus,
		CostChangePercent:   tr.CostChange * 100,
		SafetyIncidentCount: in.SafetyIncidentCount,
		ActualCost:          in.ActualCost,
		EarnedValue:         in.EarnedValue,
		ContractValue:       in.ContractValue,
		TotalHours:          in.TotalHours,
	}

	if m.LaborTrendStatus == "" {
		m.LaborTrendStatus = LaborStable
	}
	if m.CostTrendStatus == "" {
		m.CostTrendStatus = CostNormal
	}

	if in.TotalBudget > 0 {
		m.BudgetAvailable = true
		m.BudgetUtilization = in.ActualCost / in.TotalBudget * 100
	}

	if f := in.LatestForecast; f != nil {
		m.MarginAtCompletion = f.MarginAtCompletion
		m.MarginAtCompletionPercent = f.MarginAtCompletionPercent
	}

	m.Anomalies = anomalies(in, m)
	return m
}

func anomalies(in FinancialInputs, m FinancialMetrics) []string {
	var out []string
	if m.OutstandingAP < 0 {
		out = append(out, fmt.Sprintf("AP paid amount exceeds invoiced total by %.2f", -m.OutstandingAP))
	}
	if in.ActualCost < 0 {
		out = append(out, "actual cost is negative")
	}
	if in.TotalBudget < 0 {
		out = append(out, "SOV total value is negative")
	}
	if m.CPI != nil && *m.CPI < 0 {
		out = append(out, "CPI is negative")
	}
	return out
}
