// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"testing"
	"time"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/explanation"
	"mercator-hq/lucid/pkg/responsibility"
)

// FixedTime is the clock reading stamped on every fixture decision.
var FixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ScenarioTraceID is the trace ID of ScenarioFeatures under ScenarioPolicy.
const ScenarioTraceID = "trace-659e2219dea89d28"

// ScenarioConfidence is the confidence of the scenario decision.
const ScenarioConfidence = 0.7838007441975344

// ScenarioFeatures returns the three-feature sample used throughout the
// tests.
func ScenarioFeatures() decision.FeatureSet {
	return decision.FeatureSet{"attendance": 0.82, "assignments": 0.67, "labs": 0.74}
}

// ScenarioPolicy returns the weights paired with ScenarioFeatures.
func ScenarioPolicy() decision.Policy {
	return decision.Policy{"attendance": 0.4, "assignments": 0.3, "labs": 0.3}
}

// Artifacts runs the three engines over features and policy with the
// given governance, stamping decisions at FixedTime.
func Artifacts(t testing.TB, features decision.FeatureSet, policy decision.Policy, gov responsibility.Governance) (*decision.Artifact, *explanation.Artifact, *responsibility.Verdict) {
	t.Helper()

	d, err := decision.NewEngine(decision.WithClock(func() time.Time { return FixedTime })).Run(features, policy)
	AssertNoError(t, err)

	x, err := explanation.NewEngine(explanation.DefaultAudience).Run(d)
	AssertNoError(t, err)

	engine, err := responsibility.NewEngine(gov)
	AssertNoError(t, err)

	v, err := engine.Run(d, x)
	AssertNoError(t, err)

	return d, x, v
}

// Document returns the audit document of the scenario under gov.
func Document(t testing.TB, gov responsibility.Governance) *audit.Document {
	t.Helper()

	d, x, v := Artifacts(t, ScenarioFeatures(), ScenarioPolicy(), gov)
	doc, err := audit.NewDocument(d, x, v)
	AssertNoError(t, err)
	return doc
}

// DocumentFor returns an audit document for a single feature named name
// with value value. Distinct inputs yield distinct trace IDs.
func DocumentFor(t testing.TB, name string, value float64, gov responsibility.Governance) *audit.Document {
	t.Helper()

	d, x, v := Artifacts(t, decision.FeatureSet{name: value}, decision.Policy{}, gov)
	doc, err := audit.NewDocument(d, x, v)
	AssertNoError(t, err)
	return doc
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
