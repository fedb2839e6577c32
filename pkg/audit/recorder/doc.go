// Package recorder writes audit records asynchronously.
//
// Record builds the Document and Record of one evaluation and puts the
// record on a bounded queue; a single worker goroutine writes queued
// records to the storage backend with a per-write timeout. When the queue
// stays full for the write timeout the record is dropped and the caller gets
// an error wrapping audit.ErrBufferFull.
//
//	rec := recorder.NewRecorder(store, cfg.Audit.Recorder, recorder.WithMetrics(collector))
//	defer rec.Close()
//
//	record, err := rec.Record(ctx, decisionArtifact, explanationArtifact, verdict)
//
// Close stops intake and blocks until every queued record has been written.
package recorder
