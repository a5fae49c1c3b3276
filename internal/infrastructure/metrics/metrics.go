// Package metrics renders the latest portfolio report in the Prometheus text
// exposition format.
package metrics

import (
	"fmt"
	"io"
	"net/http"

	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const namespace = "sitepulse"

// ReportSource supplies the report to expose.
type ReportSource interface {
	Latest() *application.PortfolioReport
}

// Families converts a report into metric families. A nil report yields only
// sitepulse_portfolio_ready set to 0.
func Families(r *application.PortfolioReport) []*dto.MetricFamily {
	if r == nil {
		return []*dto.MetricFamily{gauge("portfolio_ready", "Whether a portfolio report is available.", sample(0))}
	}

	byHealth := make([]*dto.Metric, 0, 3)
	for _, h := range []finance.HealthStatus{finance.HealthGood, finance.HealthAtRisk, finance.HealthCritical} {
		byHealth = append(byHealth, sample(float64(r.Summary.ByHealth[h]), "health", string(h)))
	}
	byPriority := make([]*dto.Metric, 0, 4)
	for _, p := range []finance.Priority{finance.PriorityLow, finance.PriorityMedium, finance.PriorityHigh, finance.PriorityCritical} {
		byPriority = append(byPriority, sample(float64(r.Summary.ByPriority[p]), "priority", string(p)))
	}

	var cpi, budget, health, priority, issues, outstanding []*dto.Metric
	for _, a := range r.Jobs {
		labels := []string{"job_id", a.JobID, "job_name", a.JobName}
		if a.Metrics.CPI != nil {
			cpi = append(cpi, sample(*a.Metrics.CPI, labels...))
		}
		if a.Metrics.BudgetAvailable {
			budget = append(budget, sample(a.Metrics.BudgetUtilization, labels...))
		}
		health = append(health, sample(float64(a.Health.HealthStatus.Rank()), labels...))
		priority = append(priority, sample(float64(a.Health.Priority.Rank()), labels...))
		issues = append(issues, sample(float64(len(a.Health.Issues)), labels...))
		outstanding = append(outstanding, sample(a.Metrics.OutstandingAP, labels...))
	}

	families := []*dto.MetricFamily{
		gauge("portfolio_ready", "Whether a portfolio report is available.", sample(1)),
		gauge("portfolio_generated_timestamp_seconds", "Unix time the portfolio report was generated.",
			sample(float64(r.GeneratedAt.UnixNano())/1e9)),
		gauge("jobs", "Jobs assessed in the latest portfolio run.", sample(float64(r.Summary.JobCount))),
		gauge("jobs_failed", "Jobs whose assessment failed in the latest portfolio run.", sample(float64(len(r.Failed)))),
		gauge("jobs_by_health", "Assessed jobs per health status.", byHealth...),
		gauge("jobs_by_priority", "Assessed jobs per priority.", byPriority...),
		gauge("portfolio_contract_value", "Sum of contract values.", sample(r.Summary.TotalContractValue)),
		gauge("portfolio_actual_cost", "Sum of actual cost to date.", sample(r.Summary.TotalActualCost)),
		gauge("portfolio_earned_value", "Sum of earned value.", sample(r.Summary.TotalEarnedValue)),
		gauge("portfolio_outstanding_ap", "Sum of unpaid AP invoice amounts.", sample(r.Summary.TotalOutstandingAP)),
	}
	if r.Summary.PortfolioCPI != nil {
		families = append(families, gauge("portfolio_cpi", "Portfolio cost performance index.", sample(*r.Summary.PortfolioCPI)))
	}
	if len(r.Jobs) > 0 {
		families = append(families,
			gauge("job_health_rank", "Job health: 0 good, 1 at-risk, 2 critical.", health...),
			gauge("job_priority_rank", "Job priority: 0 low to 3 critical.", priority...),
			gauge("job_issues", "Issues raised for the job.", issues...),
			gauge("job_outstanding_ap", "Unpaid AP invoice amount for the job.", outstanding...),
		)
	}
	if len(cpi) > 0 {
		families = append(families, gauge("job_cpi", "Job cost performance index.", cpi...))
	}
	if len(budget) > 0 {
		families = append(families, gauge("job_budget_utilization_percent", "Actual cost as a percent of the SOV budget.", budget...))
	}
	return families
}

// Write encodes the report to w in the Prometheus text format.
func Write(w io.Writer, r *application.PortfolioReport) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range Families(r) {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the latest report from source.
func Handler(source ReportSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := Write(w, source.Latest()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func gauge(name, help string, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: metrics,
	}
}

// sample builds a gauge sample; labels are name/value pairs.
func sample(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}
