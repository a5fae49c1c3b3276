package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsJSON bool

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs known to the feed source",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadServices(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		jobs, err := env.services.Health.ListJobs(cmd.Context())
		if err != nil {
			return MapError(err)
		}

		out := cmd.OutOrStdout()
		if jobsJSON {
			return writeJSON(out, jobs)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(out, "No jobs found.")
			return nil
		}

		rows := make([][]string, 0, len(jobs))
		for _, j := range jobs {
			rows = append(rows, []string{j.ID, j.JobNumber, truncate(j.Name, 40), j.Status, formatCurrency(j.ContractValue)})
		}
		fmt.Fprintln(out, renderTable([]string{"ID", "Number", "Name", "Status", "Contract"}, rows))
		return nil
	},
}

func init() {
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "Output in JSON format")
	RootCmd.AddCommand(jobsCmd)
}
