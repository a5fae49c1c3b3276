// Package finance derives earned-value metrics and a health classification
// for construction jobs from their financial feeds.
//
// The pipeline is Ingest, ComputeTrend, ComputeFinancialMetrics and
// ClassifyJobHealth. Every stage is a pure function; Evaluate runs them in
// order.
package finance

import "time"

// Assessment is the full result of evaluating one job.
type Assessment struct {
	JobID       string           `json:"jobId"`
	JobName     string           `json:"jobName"`
	EvaluatedAt time.Time        `json:"evaluatedAt"`
	Inputs      FinancialInputs  `json:"inputs"`
	Metrics     FinancialMetrics `json:"metrics"`
	Trend       Trend            `json:"trend"`
	Health      JobHealth        `json:"health"`
	Degraded    []FeedName       `json:"degraded,omitempty"`
}

// Evaluate runs the whole pipeline over a bundle as of now.
func Evaluate(b FeedBundle, now time.Time) Assessment {
	inputs := Ingest(b)

	var job Job
	if b.Job != nil {
		job = *b.Job
	}
	var entries []TimelogEntry
	if b.Timelog != nil {
		entries = b.Timelog.Data
	}
	var invoices []APInvoice
	if b.APRegister != nil {
		invoices = b.APRegister.Data
	}

	trend := ComputeTrend(job, entries, invoices, now)
	metrics := ComputeFinancialMetrics(inputs, trend)

	jobID := b.JobID
	if jobID == "" {
		jobID = job.ID
	}

	return Assessment{
		JobID:       jobID,
		JobName:     job.Name,
		EvaluatedAt: now.UTC(),
		Inputs:      inputs,
		Metrics:     metrics,
		Trend:       trend,
		Health:      ClassifyJobHealth(metrics),
		Degraded:    b.Missing(),
	}
}
