package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/cli"
)

// defaultConfigFile is read when --config is not given. A missing default
// file is not an error.
const defaultConfigFile = "lucid.yaml"

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "lucid",
	Short: "Lucid - transparent scoring with explanation and governance",
	Long: `Lucid computes a deterministic score for a feature vector under a weighted
policy, explains it, and decides whether the decision may be used.

Every evaluation produces three artifacts:
  - a decision (prediction, confidence, feature importance, data hash)
  - an explanation (summary, technical detail, counterfactuals, caveats)
  - a responsibility verdict (allowed, reasons, audit bundle)

The artifacts can be exported as audit bundles, recorded in an audit store
and served over HTTP.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
