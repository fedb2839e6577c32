// Package responsibility gates explained decisions behind governance rules.
//
// Two rules are evaluated independently and in a fixed order:
//
//   - sensitive-attrs blocks every decision when the governance options
//     declare that sensitive attributes were used;
//   - confidence-floor blocks decisions whose confidence is below
//     min_confidence.
//
// The verdict lists one reason per violated rule, reports summary metrics,
// and carries an audit bundle sufficient to review the outcome without
// re-running the pipeline.
package responsibility
