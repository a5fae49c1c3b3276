package finance

import (
	"sort"
)

// ProgressReportRef is the part of a progress report the engine keeps.
type ProgressReportRef struct {
	ReportNumber         int     `json:"reportNumber"`
	ReportDate           Date    `json:"reportDate"`
	CalculatedPercentCTD float64 `json:"calculatedPercentCTD"`
}

// ForecastRef is the part of a cost-to-complete forecast the engine keeps.
type ForecastRef struct {
	MonthNumber               int      `json:"monthNumber"`
	MarginAtCompletion        *float64 `json:"marginAtCompletion"`
	MarginAtCompletionPercent *float64 `json:"marginAtCompletionPercent"`
}

// FinancialInputs is the normalized view of all feeds for one job.
// Every numeric field is finite; absent data is zero or nil.
type FinancialInputs struct {
	ActualCost   float64  `json:"actualCost"`
	EarnedValue  float64  `json:"earnedValue"`
	LaborCost    float64  `json:"laborCost"`
	APCost       float64  `json:"apCost"`
	CPI          *float64 `json:"cpi"`
	CostVariance float64  `json:"costVariance"`

	TotalBudget   float64 `json:"totalBudget"`
	ContractValue float64 `json:"contractValue"`

	APTotalAmount float64 `json:"apTotalAmount"`
	APPaidAmount  float64 `json:"apPaidAmount"`

	TotalHours          float64 `json:"totalHours"`
	SafetyIncidentCount int     `json:"safetyIncidentCount"`

	ProgressReportsCount         int                `json:"progressReportsCount"`
	ProgressPercent              float64            `json:"progressPercent"`
	LatestApprovedProgressReport *ProgressReportRef `json:"latestApprovedProgressReport"`
	LatestForecast               *ForecastRef       `json:"latestForecast"`
}

// Ingest normalizes a feed bundle. It is defined for every bundle, including
// one where all feeds are nil.
func Ingest(b FeedBundle) FinancialInputs {
	var in FinancialInputs

	if b.EVM != nil {
		t := b.EVM.Totals
		in.ActualCost = finite(t.ActualCost)
		in.EarnedValue = finite(t.EarnedValue)
		in.LaborCost = finite(t.LaborCost)
		in.APCost = finite(t.APCost)
		in.CPI = finitePtr(t.CPI)
		in.CostVariance = finite(t.CostVariance)
	}

	if b.SOV != nil {
		in.TotalBudget = finite(b.SOV.Data.Summary.TotalValue)
	}
	in.ContractValue = in.TotalBudget
	if in.ContractValue <= 0 && b.Job != nil {
		in.ContractValue = finite(b.Job.ContractValue)
	}

	if b.APRegister != nil {
		in.APTotalAmount = finite(b.APRegister.Meta.TotalAmount)
		in.APPaidAmount = finite(b.APRegister.Meta.PaidAmount)
	}

	if b.Timelog != nil {
		in.TotalHours = timelogHours(*b.Timelog)
		for _, e := range b.Timelog.Data {
			in.SafetyIncidentCount += len(e.SafetyIncidents)
		}
	}

	if b.ProgressReports != nil {
		in.ProgressReportsCount = len(b.ProgressReports.Data)
		in.LatestApprovedProgressReport = latestApprovedReport(b.ProgressReports.Data)
	}
	if b.Forecasts != nil {
		in.LatestForecast = latestForecast(b.Forecasts.Data)
	}

	in.ProgressPercent = progressPercent(in.LatestApprovedProgressReport, b.Job)
	return in
}

// timelogHours prefers the register total, which also covers entries beyond
// the returned page.
func timelogHours(feed TimelogFeed) float64 {
	if feed.Meta.TotalHours != nil {
		if h := finite(*feed.Meta.TotalHours); h != 0 {
			return h
		}
	}
	var sum float64
	for _, e := range feed.Data {
		sum += finite(e.TotalHours)
	}
	return sum
}

func progressPercent(report *ProgressReportRef, job *Job) float64 {
	if report != nil && report.CalculatedPercentCTD != 0 {
		return report.CalculatedPercentCTD
	}
	if job != nil {
		return finite(job.OverallProgress)
	}
	return 0
}

// latestApprovedReport sorts approved reports newest first by date, then by
// report number, and returns the first.
func latestApprovedReport(reports []ProgressReport) *ProgressReportRef {
	approved := make([]ProgressReport, 0, len(reports))
	for _, r := range reports {
		if r.Status == ProgressReportStatusApproved {
			approved = append(approved, r)
		}
	}
	if len(approved) == 0 {
		return nil
	}

	sort.SliceStable(approved, func(i, j int) bool {
		a, b := approved[i], approved[j]
		if !a.ReportDate.Equal(b.ReportDate.Time) {
			return a.ReportDate.After(b.ReportDate.Time)
		}
		return a.ReportNumber > b.ReportNumber
	})

	latest := approved[0]
	return &ProgressReportRef{
		ReportNumber:         latest.ReportNumber,
		ReportDate:           latest.ReportDate,
		CalculatedPercentCTD: finite(latest.Summary.CalculatedPercentCTD),
	}
}

// latestForecast returns the non-archived forecast with results and the
// highest month number.
func latestForecast(forecasts []Forecast) *ForecastRef {
	var best *Forecast
	for i := range forecasts {
		f := &forecasts[i]
		if f.Status == ForecastStatusArchived || f.Summary.IsEmpty() {
			continue
		}
		if best == nil || f.MonthNumber > best.MonthNumber {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	return &ForecastRef{
		MonthNumber:               best.MonthNumber,
		MarginAtCompletion:        finitePtr(best.Summary.MarginAtCompletion),
		MarginAtCompletionPercent: finitePtr(best.Summary.MarginAtCompletionPercent),
	}
}
