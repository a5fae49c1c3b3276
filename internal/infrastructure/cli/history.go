package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyDiff  bool
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history <job-id>",
	Short: "Show recorded health snapshots for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return NewCLIError("--limit must be positive", "", nil)
		}
		env, err := loadServices(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if env.services.History == nil {
			return MapError(errHistoryDisabled)
		}
		snaps, err := env.services.Health.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return MapError(err)
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			if snaps == nil {
				snaps = []finance.Snapshot{}
			}
			return writeJSON(out, snaps)
		}
		if len(snaps) == 0 {
			fmt.Fprintf(out, "No snapshots recorded for %s.\n", args[0])
			return nil
		}
		if historyDiff {
			fmt.Fprint(out, snapshotDiffs(snaps))
			return nil
		}

		rows := make([][]string, 0, len(snaps))
		for _, s := range snaps {
			rows = append(rows, []string{
				s.TakenAt.Local().Format("2006-01-02 15:04"),
				healthStyle(s.HealthStatus).Render(string(s.HealthStatus)),
				string(s.Priority),
				cpiText(s.CPI),
				formatPercent(s.BudgetUtilization),
				formatPercent(s.ProgressPercent),
				fmt.Sprintf("%d", len(s.Issues)),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"Taken", "Health", "Priority", "CPI", "Budget", "Progress", "Issues"}, rows))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum snapshots to show")
	historyCmd.Flags().BoolVar(&historyDiff, "diff", false, "Show unified diffs between consecutive snapshots")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
	RootCmd.AddCommand(historyCmd)
}

// snapshotDiffs renders a unified diff for each consecutive pair, oldest
// first. snaps is newest first, as the store returns it.
func snapshotDiffs(snaps []finance.Snapshot) string {
	if len(snaps) < 2 {
		return "Only one snapshot recorded; nothing to compare.\n"
	}
	var b strings.Builder
	for i := len(snaps) - 1; i > 0; i-- {
		prev, cur := snaps[i], snaps[i-1]
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(snapshotText(prev)),
			B:        difflib.SplitLines(snapshotText(cur)),
			FromFile: snapshotLabel(prev),
			ToFile:   snapshotLabel(cur),
			Context:  1,
		})
		if err != nil {
			fmt.Fprintf(&b, "diff %s: %v\n", cur.ID, err)
			continue
		}
		if diff == "" {
			fmt.Fprintf(&b, "%s: no change\n", snapshotLabel(cur))
			continue
		}
		b.WriteString(diff)
	}
	return b.String()
}

func snapshotLabel(s finance.Snapshot) string {
	return s.TakenAt.UTC().Format(time.RFC3339)
}

// snapshotText is the line-oriented form of a snapshot used for diffs.
func snapshotText(s finance.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "health: %s\n", s.HealthStatus)
	fmt.Fprintf(&b, "priority: %s\n", s.Priority)
	fmt.Fprintf(&b, "cpi: %s\n", cpiText(s.CPI))
	fmt.Fprintf(&b, "budget: %s\n", formatPercent(s.BudgetUtilization))
	fmt.Fprintf(&b, "progress: %s\n", formatPercent(s.ProgressPercent))
	if len(s.Degraded) > 0 {
		fmt.Fprintf(&b, "missing feeds: %s\n", joinFeeds(s.Degraded))
	}
	for _, issue := range s.Issues {
		fmt.Fprintf(&b, "issue: [%s] %s\n", issue.Severity, issue.Message)
	}
	return b.String()
}
