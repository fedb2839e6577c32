package main

import (
	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/request"
)

var demoFlags struct {
	export    bool
	exportDir string
	format    string
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the built-in demonstration",
	Long: `Evaluate a built-in student-performance request and print the decision,
explanation and responsibility verdict.

The sample features are attendance 0.82, assignments 0.67 and labs 0.74,
weighted 0.4, 0.3 and 0.3, with governance min_confidence 0.7.

Examples:
  # Print the three artifacts
  lucid demo

  # Also write reports/audits/audit_<trace_id>.json
  lucid demo --export`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().BoolVar(&demoFlags.export, "export", false, "export the audit bundle to the configured directory")
	demoCmd.Flags().StringVar(&demoFlags.exportDir, "export-dir", "", "export the audit bundle to this directory")
	demoCmd.Flags().StringVar(&demoFlags.format, "format", "text", "output format: text, json")
}

func runDemo(cmd *cobra.Command, args []string) error {
	format, err := resultFormat(demoFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in, _, err := request.Sample().Input()
	if err != nil {
		return err
	}

	return evaluateAndReport(cmd, cfg, in, evaluationOutput{
		format:    format,
		export:    demoFlags.export,
		exportDir: demoFlags.exportDir,
	})
}
