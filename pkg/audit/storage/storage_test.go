package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestRecord builds a record decided i minutes after baseTime.
func newTestRecord(i int, allowed bool, confidence float64) *audit.Record {
	traceID := fmt.Sprintf("trace-%016x", i)
	reasons := []string{}
	if !allowed {
		reasons = []string{"Confidence below threshold."}
	}
	return &audit.Record{
		ID:           fmt.Sprintf("id-%d", i),
		TraceID:      traceID,
		DataHash:     fmt.Sprintf("hash-%d", i%3),
		ModelVersion: "v1.0",
		Allowed:      allowed,
		Confidence:   confidence,
		Reasons:      reasons,
		DecidedAt:    baseTime.Add(time.Duration(i) * time.Minute),
		RecordedAt:   baseTime.Add(time.Duration(i)*time.Minute + time.Second),
		ContentHash:  fmt.Sprintf("content-%d", i),
		Document: &audit.Document{
			TraceID: traceID,
			Decision: audit.DecisionSection{
				Prediction:        0.5,
				Confidence:        confidence,
				FeatureImportance: map[string]float64{"income": 0.5},
				ModelVersion:      "v1.0",
			},
			Responsibility: audit.ResponsibilitySection{Allowed: allowed, Reasons: reasons},
		},
	}
}

// backends returns a fresh instance of every backend.
func backends(t *testing.T) map[string]audit.Storage {
	t.Helper()

	sqliteStore, err := NewSQLiteStorage(config.SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "audit.db"),
		Driver:       DriverPureGo,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}

	stores := map[string]audit.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func seed(t *testing.T, s audit.Storage, records ...*audit.Record) {
	t.Helper()
	for _, r := range records {
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store(%s) failed: %v", r.TraceID, err)
		}
	}
}

func traceIDs(records []*audit.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.TraceID
	}
	return ids
}

func TestStorage_StoreAndGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := newTestRecord(1, false, 0.42)
			seed(t, s, record)

			got, err := s.Get(ctx, record.TraceID)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if got.ID != record.ID || got.ContentHash != record.ContentHash {
				t.Errorf("Expected %s/%s, got %s/%s", record.ID, record.ContentHash, got.ID, got.ContentHash)
			}
			if !got.DecidedAt.Equal(record.DecidedAt) || !got.RecordedAt.Equal(record.RecordedAt) {
				t.Errorf("Expected times %v/%v, got %v/%v", record.DecidedAt, record.RecordedAt, got.DecidedAt, got.RecordedAt)
			}
			if got.Allowed || got.Confidence != 0.42 {
				t.Errorf("Expected blocked with confidence 0.42, got allowed=%v confidence=%v", got.Allowed, got.Confidence)
			}
			if len(got.Reasons) != 1 {
				t.Errorf("Expected 1 reason, got %v", got.Reasons)
			}
			if got.Document == nil || got.Document.Decision.FeatureImportance["income"] != 0.5 {
				t.Errorf("Expected document to round-trip, got %+v", got.Document)
			}
		})
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "trace-missing")
			if !errors.Is(err, audit.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStorage_UpsertByTraceID(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := newTestRecord(1, true, 0.9)
			second := newTestRecord(1, false, 0.3)
			second.ID = "id-replaced"
			seed(t, s, first, second)

			count, err := s.Count(ctx, nil)
			if err != nil {
				t.Fatalf("Count() failed: %v", err)
			}
			if count != 1 {
				t.Fatalf("Expected 1 record after re-recording a trace, got %d", count)
			}

			got, err := s.Get(ctx, first.TraceID)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if got.ID != "id-replaced" || got.Allowed {
				t.Errorf("Expected the second record to win, got %+v", got)
			}
		})
	}
}

func TestStorage_QueryFilters(t *testing.T) {
	allowed, blocked := true, false
	minConf, maxConf := 0.5, 0.8
	start := baseTime.Add(2 * time.Minute)
	end := baseTime.Add(4 * time.Minute)
	recordedBefore := baseTime.Add(2*time.Minute + time.Second)

	records := []*audit.Record{
		newTestRecord(0, true, 0.95),
		newTestRecord(1, false, 0.40),
		newTestRecord(2, true, 0.70),
		newTestRecord(3, false, 0.55),
		newTestRecord(4, true, 0.80),
		newTestRecord(5, true, 0.60),
	}
	records[5].ModelVersion = "v2.0"

	tests := []struct {
		name  string
		query *audit.Query
		want  []string
	}{
		{"no filter", &audit.Query{SortOrder: "asc"}, traceIDs(records)},
		{"time range inclusive", &audit.Query{StartTime: &start, EndTime: &end, SortOrder: "asc"}, traceIDs(records[2:5])},
		{"recorded before is strict", &audit.Query{RecordedBefore: &recordedBefore, SortOrder: "asc"}, traceIDs(records[:2])},
		{"allowed", &audit.Query{Allowed: &allowed, SortOrder: "asc"}, traceIDs([]*audit.Record{records[0], records[2], records[4], records[5]})},
		{"blocked", &audit.Query{Allowed: &blocked, SortOrder: "asc"}, traceIDs([]*audit.Record{records[1], records[3]})},
		{"confidence range", &audit.Query{MinConfidence: &minConf, MaxConfidence: &maxConf, SortOrder: "asc"}, traceIDs(records[2:6])},
		{"model version", &audit.Query{ModelVersion: "v2.0"}, traceIDs(records[5:])},
		{"data hash", &audit.Query{DataHash: "hash-0", SortOrder: "asc"}, traceIDs([]*audit.Record{records[0], records[3]})},
		{"trace IDs", &audit.Query{TraceIDs: []string{records[4].TraceID, records[1].TraceID}, SortOrder: "asc"}, traceIDs([]*audit.Record{records[1], records[4]})},
		{"nothing matches", &audit.Query{ModelVersion: "v9"}, []string{}},
	}

	for name, s := range backends(t) {
		seed(t, s, records...)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := s.Query(context.Background(), tt.query)
				if err != nil {
					t.Fatalf("Query() failed: %v", err)
				}
				if fmt.Sprint(traceIDs(got)) != fmt.Sprint(tt.want) {
					t.Errorf("Expected %v, got %v", tt.want, traceIDs(got))
				}

				count, err := s.Count(context.Background(), tt.query)
				if err != nil {
					t.Fatalf("Count() failed: %v", err)
				}
				if count != int64(len(tt.want)) {
					t.Errorf("Expected count %d, got %d", len(tt.want), count)
				}
			})
		}
	}
}

func TestStorage_SortAndPaginate(t *testing.T) {
	records := []*audit.Record{
		newTestRecord(0, true, 0.70),
		newTestRecord(1, true, 0.90),
		newTestRecord(2, true, 0.50),
		newTestRecord(3, true, 0.90),
	}

	tests := []struct {
		name  string
		query *audit.Query
		want  []string
	}{
		{"default newest first", &audit.Query{}, traceIDs([]*audit.Record{records[3], records[2], records[1], records[0]})},
		{"confidence desc ties by trace", &audit.Query{SortBy: audit.SortByConfidence}, traceIDs([]*audit.Record{records[1], records[3], records[0], records[2]})},
		{"recorded asc", &audit.Query{SortBy: audit.SortByRecordedAt, SortOrder: "asc"}, traceIDs(records)},
		{"limit", &audit.Query{SortOrder: "asc", Limit: 2}, traceIDs(records[:2])},
		{"offset only", &audit.Query{SortOrder: "asc", Offset: 3}, traceIDs(records[3:])},
		{"limit and offset", &audit.Query{SortOrder: "asc", Limit: 2, Offset: 1}, traceIDs(records[1:3])},
		{"offset past end", &audit.Query{Offset: 10}, []string{}},
	}

	for name, s := range backends(t) {
		seed(t, s, records...)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := s.Query(context.Background(), tt.query)
				if err != nil {
					t.Fatalf("Query() failed: %v", err)
				}
				if fmt.Sprint(traceIDs(got)) != fmt.Sprint(tt.want) {
					t.Errorf("Expected %v, got %v", tt.want, traceIDs(got))
				}
			})
		}
	}
}

func TestStorage_QueryStream(t *testing.T) {
	var records []*audit.Record
	for i := range 250 {
		records = append(records, newTestRecord(i, i%2 == 0, 0.5))
	}

	for name, s := range backends(t) {
		seed(t, s, records...)

		t.Run(name+"/all", func(t *testing.T) {
			recordsCh, errCh, err := s.QueryStream(context.Background(), &audit.Query{SortOrder: "asc"})
			if err != nil {
				t.Fatalf("QueryStream() failed: %v", err)
			}

			var streamed []*audit.Record
			for r := range recordsCh {
				streamed = append(streamed, r)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("stream error: %v", err)
			}
			if len(streamed) != len(records) {
				t.Fatalf("Expected %d records, got %d", len(records), len(streamed))
			}
			if streamed[0].TraceID != records[0].TraceID {
				t.Errorf("Expected ascending order, first was %s", streamed[0].TraceID)
			}
		})

		t.Run(name+"/cancelled", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			recordsCh, errCh, err := s.QueryStream(ctx, &audit.Query{})
			if err != nil {
				t.Fatalf("QueryStream() failed: %v", err)
			}

			<-recordsCh
			cancel()
			for range recordsCh {
			}
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Expected nil or context.Canceled, got %v", err)
			}
		})
	}
}

func TestStorage_Delete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s,
				newTestRecord(0, true, 0.9),
				newTestRecord(1, false, 0.2),
				newTestRecord(2, false, 0.3),
			)

			blocked := false
			deleted, err := s.Delete(ctx, &audit.Query{Allowed: &blocked})
			if err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
			if deleted != 2 {
				t.Errorf("Expected 2 deleted, got %d", deleted)
			}

			remaining, _ := s.Count(ctx, nil)
			if remaining != 1 {
				t.Errorf("Expected 1 remaining, got %d", remaining)
			}
		})
	}
}

func TestStorage_ConcurrentWrites(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := range 50 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := s.Store(context.Background(), newTestRecord(i, true, 0.8)); err != nil {
						t.Errorf("Store() failed: %v", err)
					}
				}()
			}
			wg.Wait()

			count, err := s.Count(context.Background(), nil)
			if err != nil {
				t.Fatalf("Count() failed: %v", err)
			}
			if count != 50 {
				t.Errorf("Expected 50 records, got %d", count)
			}
		})
	}
}

func TestStorage_RejectsRecordWithoutTrace(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Store(context.Background(), &audit.Record{ID: "x"})
			var serr *audit.StorageError
			if !errors.As(err, &serr) {
				t.Errorf("Expected *audit.StorageError, got %v", err)
			}
		})
	}
}

func TestStorage_Ping(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Ping(context.Background()); err != nil {
				t.Errorf("Ping() failed: %v", err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(config.AuditConfig{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("New(memory) failed: %v", err)
	}
	if _, ok := s.(*MemoryStorage); !ok {
		t.Errorf("Expected *MemoryStorage, got %T", s)
	}

	s, err = New(config.AuditConfig{
		Backend: BackendSQLite,
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "a.db")},
	})
	if err != nil {
		t.Fatalf("New(sqlite) failed: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStorage); !ok {
		t.Errorf("Expected *SQLiteStorage, got %T", s)
	}

	if _, err := New(config.AuditConfig{Backend: "postgres"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
