package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	lucidtest "mercator-hq/lucid/internal/testutil"
	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/audit/storage"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/responsibility"
	"mercator-hq/lucid/pkg/telemetry/metrics"
)

// gatedStorage blocks every Store until the gate is closed.
type gatedStorage struct {
	*storage.MemoryStorage
	gate chan struct{}
	once sync.Once
}

func newGatedStorage() *gatedStorage {
	return &gatedStorage{MemoryStorage: storage.NewMemoryStorage(), gate: make(chan struct{})}
}

func (g *gatedStorage) Store(ctx context.Context, record *audit.Record) error {
	<-g.gate
	return g.MemoryStorage.Store(context.Background(), record)
}

func (g *gatedStorage) open() { g.once.Do(func() { close(g.gate) }) }

// failingStorage rejects every write.
type failingStorage struct {
	*storage.MemoryStorage
}

func (failingStorage) Store(context.Context, *audit.Record) error {
	return errors.New("disk full")
}

func TestRecorder_RecordAndClose(t *testing.T) {
	store := storage.NewMemoryStorage()
	recordedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := NewRecorder(store, config.RecorderConfig{AsyncBuffer: 10},
		WithClock(func() time.Time { return recordedAt }))

	d, x, v := lucidtest.Artifacts(t, lucidtest.ScenarioFeatures(), lucidtest.ScenarioPolicy(), responsibility.DefaultGovernance())

	record, err := rec.Record(context.Background(), d, x, v)
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if record.TraceID != lucidtest.ScenarioTraceID {
		t.Errorf("Expected trace ID %s, got %s", lucidtest.ScenarioTraceID, record.TraceID)
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	stored, err := store.Get(context.Background(), record.TraceID)
	if err != nil {
		t.Fatalf("Expected record to be written on Close, got %v", err)
	}
	if !stored.RecordedAt.Equal(recordedAt) {
		t.Errorf("Expected recorded at %v, got %v", recordedAt, stored.RecordedAt)
	}
	if err := audit.VerifyRecord(stored); err != nil {
		t.Errorf("Expected stored record to verify, got %v", err)
	}
}

func TestRecorder_DrainsQueueOnClose(t *testing.T) {
	store := newGatedStorage()
	rec := NewRecorder(store, config.RecorderConfig{AsyncBuffer: 20, WriteTimeout: time.Second})

	for i := range 10 {
		doc := lucidtest.DocumentFor(t, "f", float64(i), responsibility.DefaultGovernance())
		record, err := audit.NewRecord(doc, time.Now())
		if err != nil {
			t.Fatalf("NewRecord() failed: %v", err)
		}
		if err := rec.Enqueue(context.Background(), record); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	store.open()
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if store.Size() != 10 {
		t.Errorf("Expected 10 records after drain, got %d", store.Size())
	}
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	rec := NewRecorder(storage.NewMemoryStorage(), config.RecorderConfig{})
	rec.Close()

	d, x, v := lucidtest.Artifacts(t, lucidtest.ScenarioFeatures(), lucidtest.ScenarioPolicy(), responsibility.DefaultGovernance())
	_, err := rec.Record(context.Background(), d, x, v)
	if !errors.Is(err, audit.ErrRecorderClosed) {
		t.Errorf("Expected ErrRecorderClosed, got %v", err)
	}

	if err := rec.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestRecorder_BufferFull(t *testing.T) {
	store := newGatedStorage()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, registry)

	rec := NewRecorder(store, config.RecorderConfig{AsyncBuffer: 1, WriteTimeout: 50 * time.Millisecond},
		WithMetrics(collector))
	defer func() {
		store.open()
		rec.Close()
	}()

	var lastErr error
	// The worker holds one record and the queue one more; the rest time out.
	for i := range 4 {
		doc := lucidtest.DocumentFor(t, "f", float64(i), responsibility.DefaultGovernance())
		record, _ := audit.NewRecord(doc, time.Now())
		if err := rec.Enqueue(context.Background(), record); err != nil {
			lastErr = err
		}
	}

	if !errors.Is(lastErr, audit.ErrBufferFull) {
		t.Fatalf("Expected ErrBufferFull, got %v", lastErr)
	}
	var rerr *audit.RecorderError
	if !errors.As(lastErr, &rerr) || rerr.TraceID == "" {
		t.Errorf("Expected *audit.RecorderError with trace ID, got %v", lastErr)
	}

	expected := `
# HELP test_audit_records_dropped_total Total number of audit records dropped on a full buffer
# TYPE test_audit_records_dropped_total counter
test_audit_records_dropped_total 2
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_audit_records_dropped_total"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestRecorder_StoreFailureIsCounted(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, registry)
	rec := NewRecorder(failingStorage{storage.NewMemoryStorage()}, config.RecorderConfig{}, WithMetrics(collector))

	d, x, v := lucidtest.Artifacts(t, lucidtest.ScenarioFeatures(), lucidtest.ScenarioPolicy(), responsibility.DefaultGovernance())
	if _, err := rec.Record(context.Background(), d, x, v); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	rec.Close()

	expected := `
# HELP test_audit_records_failed_total Total number of audit records that failed to store
# TYPE test_audit_records_failed_total counter
test_audit_records_failed_total 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_audit_records_failed_total"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestRecorder_RejectsMismatchedArtifacts(t *testing.T) {
	rec := NewRecorder(storage.NewMemoryStorage(), config.RecorderConfig{})
	defer rec.Close()

	d, x, v := lucidtest.Artifacts(t, lucidtest.ScenarioFeatures(), lucidtest.ScenarioPolicy(), responsibility.DefaultGovernance())
	other := *v
	other.TraceID = "trace-ffffffffffffffff"

	_, err := rec.Record(context.Background(), d, x, &other)
	if !errors.Is(err, responsibility.ErrTraceMismatch) {
		t.Errorf("Expected ErrTraceMismatch, got %v", err)
	}
}
