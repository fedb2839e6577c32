// Package decision scores named numeric features against a weight policy.
//
// The engine computes a normalized linear score, maps it to a confidence in
// (0, 1) with the logistic function, and reports each feature's signed
// contribution. Every artifact carries two content-derived identifiers:
//
//   - DataHash, the stable hash of the features alone;
//   - TraceID, "trace-" followed by 16 hex characters of the stable hash of
//     the features together with the policy.
//
// Both are independent of the wall-clock timestamp, so identical inputs
// always produce identical identifiers.
//
// # Usage
//
//	engine := decision.NewEngine(decision.WithModelVersion("v1.0"))
//	artifact, err := engine.Run(
//	    decision.FeatureSet{"attendance": 0.82, "labs": 0.74},
//	    decision.Policy{"attendance": 0.4},
//	)
package decision
