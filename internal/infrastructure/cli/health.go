package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/spf13/cobra"
)

var (
	healthJSON   bool
	healthWeekly bool
)

var healthCmd = &cobra.Command{
	Use:   "health [job-id]",
	Short: "Assess one job, or the whole portfolio when no job is given",
	Args:  cobra.MaximumNArgs(1),
	Example: `  sitepulse health
  sitepulse health J-100 --weekly`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadServices(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			if healthWeekly {
				return NewCLIError("--weekly needs a job", "Run 'sitepulse health <job-id> --weekly'", nil)
			}
			report, err := env.services.Portfolio.Assess(cmd.Context())
			if err != nil {
				return MapError(err)
			}
			if healthJSON {
				return writeJSON(out, report)
			}
			printPortfolio(out, report)
			return nil
		}

		jobID := args[0]
		if !healthWeekly {
			report, err := env.services.Health.Assess(cmd.Context(), jobID)
			if err != nil {
				return MapError(err)
			}
			if healthJSON {
				return writeJSON(out, report)
			}
			printAssessment(out, report.Assessment)
			printChange(out, report.Change)
			return nil
		}

		bundle, err := env.services.Source.FetchBundle(cmd.Context(), jobID)
		if err != nil {
			return MapError(fmt.Errorf("fetch feeds for %s: %w", jobID, err))
		}
		report, err := env.services.Health.AssessBundle(cmd.Context(), bundle)
		if err != nil {
			return MapError(err)
		}
		weeks := weeklyBuckets(bundle)
		if healthJSON {
			return writeJSON(out, struct {
				*application.JobReport
				Weekly []finance.TimeBucket `json:"weekly"`
			}{report, weeks})
		}
		printAssessment(out, report.Assessment)
		printChange(out, report.Change)
		printBuckets(out, "Weekly", weeks)
		return nil
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output in JSON format")
	healthCmd.Flags().BoolVar(&healthWeekly, "weekly", false, "Add a weekly labor and materials breakdown")
	RootCmd.AddCommand(healthCmd)
}

func weeklyBuckets(b finance.FeedBundle) []finance.TimeBucket {
	var entries []finance.TimelogEntry
	if b.Timelog != nil {
		entries = b.Timelog.Data
	}
	var invoices []finance.APInvoice
	if b.APRegister != nil {
		invoices = b.APRegister.Data
	}
	return finance.WeeklyBuckets(entries, invoices)
}

func printPortfolio(w io.Writer, r *application.PortfolioReport) {
	s := r.Summary
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Portfolio: %d jobs", s.JobCount)))
	fmt.Fprintf(w, "Health:   %d good, %d at risk, %d critical\n",
		s.ByHealth[finance.HealthGood], s.ByHealth[finance.HealthAtRisk], s.ByHealth[finance.HealthCritical])
	fmt.Fprintf(w, "Contract: %s  Actual: %s  Earned: %s  Outstanding AP: %s\n",
		formatCurrency(s.TotalContractValue), formatCurrency(s.TotalActualCost),
		formatCurrency(s.TotalEarnedValue), formatCurrency(s.TotalOutstandingAP))
	fmt.Fprintf(w, "CPI:      %s\n", cpiText(s.PortfolioCPI))

	if len(r.Jobs) > 0 {
		rows := make([][]string, 0, len(r.Jobs))
		for _, a := range r.Jobs {
			top := "-"
			if issue, ok := a.Health.TopIssue(); ok {
				top = truncate(issue.Message, 48)
			}
			rows = append(rows, []string{
				a.JobID,
				truncate(a.JobName, 28),
				healthStyle(a.Health.HealthStatus).Render(string(a.Health.HealthStatus)),
				string(a.Health.Priority),
				cpiText(a.Metrics.CPI),
				budgetText(a.Metrics),
				top,
			})
		}
		fmt.Fprintln(w, renderTable([]string{"Job", "Name", "Health", "Priority", "CPI", "Budget", "Top issue"}, rows))
	}

	for _, c := range r.Changes {
		printChange(w, &c)
	}
	if len(r.Failed) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Not assessed:"))
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  %s: %s\n", f.JobID, f.Error)
		}
	}
}

func printAssessment(w io.Writer, a finance.Assessment) {
	m := a.Metrics
	h := a.Health
	name := a.JobName
	if name == "" {
		name = a.JobID
	}

	fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(name), mutedStyle.Render(a.JobID))
	fmt.Fprintf(w, "Health:   %s (priority %s)\n", healthStyle(h.HealthStatus).Render(finance.HealthLabel(h.HealthStatus).Text), h.Priority)
	fmt.Fprintf(w, "CPI:      %s\n", cpiText(m.CPI))
	fmt.Fprintf(w, "Budget:   %s\n", budgetText(m))
	fmt.Fprintf(w, "Progress: %s\n", formatPercent(m.ProgressPercent))
	fmt.Fprintf(w, "Contract: %s  Actual: %s  Earned: %s\n",
		contractText(m), formatCurrency(m.ActualCost), formatCurrency(m.EarnedValue))
	fmt.Fprintf(w, "AP:       %s outstanding\n", formatCurrency(m.OutstandingAP))
	if m.MarginAtCompletion != nil {
		fmt.Fprintf(w, "Margin:   %s at completion (%s)\n", formatCurrency(*m.MarginAtCompletion), formatOptionalPercent(m.MarginAtCompletionPercent))
	}
	fmt.Fprintf(w, "Trend:    labor %s, cost %s (%+.1f%%)\n", m.LaborTrendStatus, m.CostTrendStatus, m.CostChangePercent)
	if m.SafetyIncidentCount > 0 {
		fmt.Fprintf(w, "Safety:   %d incident(s)\n", m.SafetyIncidentCount)
	}
	if len(a.Degraded) > 0 {
		fmt.Fprintf(w, "%s\n", mutedStyle.Render("Missing feeds: "+joinFeeds(a.Degraded)))
	}
	for _, an := range m.Anomalies {
		fmt.Fprintf(w, "%s\n", mutedStyle.Render("Anomaly: "+an))
	}

	if len(h.Issues) == 0 {
		fmt.Fprintln(w, "No issues.")
	} else {
		fmt.Fprintln(w, titleStyle.Render("Issues:"))
		for _, issue := range h.Issues {
			fmt.Fprintf(w, "  [%s/%s] %s\n", issue.Severity, issue.Type, issue.Message)
			if issue.Action != "" {
				fmt.Fprintf(w, "    -> %s\n", issue.Action)
			}
		}
	}
	printBuckets(w, "Monthly", a.Trend.Buckets)
}

func printBuckets(w io.Writer, title string, buckets []finance.TimeBucket) {
	if len(buckets) == 0 {
		return
	}
	rows := make([][]string, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, []string{
			b.Key,
			fmt.Sprintf("%.1f", b.Hours),
			formatCurrency(b.LaborCost),
			formatCurrency(b.Materials),
			formatCurrency(b.Total()),
		})
	}
	fmt.Fprintln(w, titleStyle.Render(title+":"))
	fmt.Fprintln(w, renderTable([]string{strings.TrimSuffix(title, "ly"), "Hours", "Labor", "Materials", "Total"}, rows))
}

func printChange(w io.Writer, c *finance.StatusChange) {
	if c == nil {
		return
	}
	verb := "improved"
	if c.Escalated {
		verb = "escalated"
	}
	fmt.Fprintf(w, "%s %s: %s/%s -> %s/%s\n", c.JobID, verb, c.FromHealth, c.FromPriority, c.ToHealth, c.ToPriority)
}
