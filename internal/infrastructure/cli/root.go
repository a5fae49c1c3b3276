package cli

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// projectPath overrides the workspace root (--project).
var projectPath string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "sitepulse",
	Version: Version,
	Short:   "Earned-value and financial health for construction jobs",
	Long: `SitePulse reads a job's financial feeds (earned value, AP register,
timelog, schedule of values, progress reports and forecasts) and answers:
1. Is the job on budget?
2. How bad is it, and how urgent?
3. What should the project team do next?`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil {
		PrintError(RootCmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", "", "Workspace root (defaults to the current directory)")
}
