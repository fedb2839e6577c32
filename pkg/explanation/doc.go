// Package explanation turns a decision artifact into a human-readable
// account of how it was reached: a one-line summary naming the strongest
// contributors, a technical snapshot, first-order counterfactuals, and a
// fixed list of caveats.
package explanation
