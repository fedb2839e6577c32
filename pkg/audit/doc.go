// Package audit turns evaluations into durable, verifiable audit records.
//
// A Document joins the decision, explanation and verdict of one evaluation
// under their shared trace ID. A Record wraps a Document for storage with a
// UUID, the indexed fields used by queries, and a content hash computed
// with the canonical JSON hasher over the document minus its export time.
// VerifyRecord recomputes that hash, so any edit to a stored document is
// detected.
//
// # Subpackages
//
//   - storage: SQLite and in-memory backends implementing Storage.
//   - recorder: asynchronous writer used by the pipeline and the server.
//   - query: validation and defaults for Query values.
//   - export: JSON, CSV and per-trace file exporters.
//   - retention: age and count based pruning with optional archives.
//
// # Usage
//
//	doc, err := audit.NewDocument(decisionArtifact, explanationArtifact, verdict)
//	if err != nil {
//	    return err
//	}
//	record, err := audit.NewRecord(doc, time.Now())
//	if err != nil {
//	    return err
//	}
//	if err := store.Store(ctx, record); err != nil {
//	    return err
//	}
//
// Re-recording a trace replaces the earlier record; trace IDs are unique in
// every backend.
package audit
