package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/explanation"
	"mercator-hq/lucid/pkg/responsibility"
	"mercator-hq/lucid/pkg/telemetry/metrics"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithMetrics reports stored, failed and dropped records to collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(r *Recorder) {
		r.metrics = collector
	}
}

// WithClock overrides the clock used for RecordedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// Recorder writes audit records to a storage backend from a single
// background worker so that evaluations never wait on storage.
type Recorder struct {
	storage    audit.Storage
	config     config.RecorderConfig
	recordChan chan *audit.Record
	wg         sync.WaitGroup
	logger     *slog.Logger
	metrics    *metrics.Collector
	now        func() time.Time

	// mu guards closed and the close of recordChan against in-flight sends.
	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a recorder writing to storage. Zero-valued settings in
// cfg take their defaults.
func NewRecorder(storage audit.Storage, cfg config.RecorderConfig, opts ...Option) *Recorder {
	if cfg.AsyncBuffer <= 0 {
		cfg.AsyncBuffer = config.DefaultAuditRecorderAsyncBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultAuditRecorderWriteTimeout
	}

	r := &Recorder{
		storage:    storage,
		config:     cfg,
		recordChan: make(chan *audit.Record, cfg.AsyncBuffer),
		logger:     slog.Default().With("component", "audit.recorder"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"async_buffer", cfg.AsyncBuffer,
		"write_timeout", cfg.WriteTimeout,
	)

	return r
}

// Record builds the audit record of one evaluation and queues it for
// writing. It returns the queued record, which callers may export right
// away. If the queue stays full for the write timeout the record is dropped
// and an error wrapping audit.ErrBufferFull is returned.
func (r *Recorder) Record(ctx context.Context, d *decision.Artifact, x *explanation.Artifact, v *responsibility.Verdict) (*audit.Record, error) {
	doc, err := audit.NewDocument(d, x, v)
	if err != nil {
		return nil, audit.NewRecorderError(traceIDOf(d), err)
	}
	record, err := audit.NewRecord(doc, r.now())
	if err != nil {
		return nil, audit.NewRecorderError(doc.TraceID, err)
	}

	if err := r.Enqueue(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Enqueue queues an already built record.
func (r *Recorder) Enqueue(ctx context.Context, record *audit.Record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return audit.NewRecorderError(record.TraceID, audit.ErrRecorderClosed)
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- record:
		r.logger.Debug("audit record queued",
			"trace_id", record.TraceID,
			"record_id", record.ID,
		)
		return nil
	case <-timer.C:
		r.metrics.RecordAuditDropped()
		r.logger.Error("audit queue full, dropping record",
			"trace_id", record.TraceID,
			"queue_capacity", r.config.AsyncBuffer,
		)
		return audit.NewRecorderError(record.TraceID, audit.ErrBufferFull)
	case <-ctx.Done():
		r.metrics.RecordAuditDropped()
		return audit.NewRecorderError(record.TraceID, ctx.Err())
	}
}

// Pending returns the number of queued records not yet written.
func (r *Recorder) Pending() int {
	return len(r.recordChan)
}

// Close stops accepting records, writes everything still queued and waits
// for the worker to exit. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.recordChan)
	r.mu.Unlock()

	r.logger.Info("draining audit queue", "pending_count", len(r.recordChan))
	r.wg.Wait()
	r.logger.Info("audit recorder shut down")
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for record := range r.recordChan {
		r.writeRecord(record)
	}
}

func (r *Recorder) writeRecord(record *audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.metrics.RecordAuditFailed()
		r.logger.Error("failed to store audit record",
			"trace_id", record.TraceID,
			"record_id", record.ID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.metrics.RecordAuditStored(duration)

	r.logger.Debug("audit record stored",
		"trace_id", record.TraceID,
		"allowed", record.Allowed,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"trace_id", record.TraceID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

func traceIDOf(d *decision.Artifact) string {
	if d == nil {
		return ""
	}
	return d.TraceID
}
