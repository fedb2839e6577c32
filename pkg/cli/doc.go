/*
Package cli provides helpers shared by the lucid commands.

Output Formatting:

Results can be written as text, JSON or (for audit records) CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

The text formatter prints a pipeline result as three sections (decision,
explanation and responsibility verdict), matching the demo output.

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "evaluations")
	progress.Start(int64(len(inputs)))
	...
	progress.Finish()

Errors and Exit Codes:

Commands return ConfigError for bad flags or configuration and CommandError
around failures. ExitCode maps any returned error to the process exit
status.
*/
package cli
