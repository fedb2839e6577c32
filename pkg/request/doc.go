// Package request parses evaluation request documents.
//
// A request carries named feature values, optional policy weights and an
// optional governance block, in JSON or YAML:
//
//	features:
//	  attendance: 0.82
//	  assignments: 0.67
//	  labs: 0.74
//	policy:
//	  attendance: 0.4
//	  assignments: 0.3
//	  labs: 0.3
//	governance:
//	  min_confidence: 0.7
//
// Documents are checked against an embedded JSON Schema before decoding.
// Feature values and weights must be numbers and feature names must not be
// empty. Governance keys are typed but not range-checked here; the
// responsibility engine rejects out-of-domain values when the input is
// built.
package request
