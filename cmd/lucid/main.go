// Lucid scores feature vectors against a weighted policy, explains every
// score and gates it behind governance rules, keeping a tamper-evident
// audit trail of each evaluation.
//
// Usage:
//
//	# Evaluate a request document and print the three artifacts
//	lucid evaluate --input request.yaml
//
//	# Evaluate and write the audit bundle to reports/audits
//	lucid evaluate --input request.yaml --export
//
//	# Run the built-in demonstration
//	lucid demo
//
//	# Evaluate many documents concurrently
//	lucid batch --input a.json --input b.yaml --parallel 8
//
//	# Serve evaluations over HTTP
//	lucid serve --config /etc/lucid/config.yaml
//
//	# Query the audit trail
//	lucid audit query --verdict blocked --since 24h
package main

func main() {
	Execute()
}
