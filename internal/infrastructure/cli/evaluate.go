package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/felixgeelhaar/sitepulse/pkg/feeds"
	"github.com/spf13/cobra"
)

var (
	evaluateFile   string
	evaluateNow    string
	evaluateJSON   bool
	evaluateSchema bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a feed bundle file without a workspace",
	Long: `Validate a JSON feed bundle against the bundle schema and print its
assessment. Nothing is recorded. Use --file - to read from stdin.`,
	Example: `  sitepulse evaluate --file J-100.json --now 2025-06-15
  sitepulse evaluate --schema`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if evaluateSchema {
			fmt.Fprintln(out, feeds.BundleSchema())
			return nil
		}
		if evaluateFile == "" {
			return NewCLIError("no bundle given", "Pass --file <bundle.json> or --file - for stdin", nil)
		}

		now := time.Now()
		if evaluateNow != "" {
			d, ok := finance.ParseDate(evaluateNow)
			if !ok {
				return NewCLIError(fmt.Sprintf("invalid --now %q", evaluateNow), "Use YYYY-MM-DD", nil)
			}
			now = d.Time
		}

		doc, err := readBundle(cmd.InOrStdin(), evaluateFile)
		if err != nil {
			return err
		}
		bundle, err := feeds.DecodeBundle(doc)
		if err != nil {
			return MapError(err)
		}

		a := finance.Evaluate(bundle, now)
		if evaluateJSON {
			return writeJSON(out, a)
		}
		printAssessment(out, a)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVarP(&evaluateFile, "file", "f", "", "Bundle file, or - for stdin")
	evaluateCmd.Flags().StringVar(&evaluateNow, "now", "", "Evaluation date (YYYY-MM-DD, default today)")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Output in JSON format")
	evaluateCmd.Flags().BoolVar(&evaluateSchema, "schema", false, "Print the bundle JSON schema and exit")
	RootCmd.AddCommand(evaluateCmd)
}

func readBundle(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return data, nil
}
