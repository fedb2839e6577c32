package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/request"
)

var validateFlags struct {
	inputs []string
	schema bool
}

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate configuration and request documents",
	Long: `Check the configuration file and any request documents without
evaluating them.

Request documents are checked against the request schema and their
governance blocks against the governance option domains. Unknown governance
keys are reported as warnings.

Examples:
  # Validate the configuration only
  lucid validate --config lucid.yaml

  # Validate request documents
  lucid validate --input a.json --input b.yaml

  # Print the request JSON Schema
  lucid validate --schema`,
	RunE: validateDocuments,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringArrayVarP(&validateFlags.inputs, "input", "i", nil, "request document (repeatable)")
	validateCmd.Flags().BoolVar(&validateFlags.schema, "schema", false, "print the request JSON Schema and exit")
}

func validateDocuments(cmd *cobra.Command, args []string) error {
	out := stdout(cmd)

	if validateFlags.schema {
		_, err := out.Write(request.Schema())
		return err
	}

	if _, err := loadConfig(); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Configuration valid (%s)\n", cfgFile)

	paths := append(append([]string(nil), validateFlags.inputs...), args...)

	var firstErr error
	invalid := 0
	for _, path := range paths {
		doc, err := request.Load(path)
		if err == nil {
			var ignored []string
			_, ignored, err = doc.Input()
			if err == nil && len(ignored) > 0 {
				fmt.Fprintf(out, "! %s: unknown governance keys ignored: %v\n", path, ignored)
			}
		}
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", path, err)
			invalid++
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", path, err)
			}
			continue
		}
		fmt.Fprintf(out, "✓ %s\n", path)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d request document(s) invalid: %w", invalid, len(paths), firstErr)
	}
	return nil
}

