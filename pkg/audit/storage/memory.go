package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"mercator-hq/lucid/pkg/audit"
)

// MemoryStorage implements audit.Storage with an in-memory map keyed by
// trace ID. Records are lost when the process exits.
type MemoryStorage struct {
	records map[string]*audit.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*audit.Record),
	}
}

// Store persists a copy of record, replacing any record with the same
// trace ID.
func (s *MemoryStorage) Store(ctx context.Context, record *audit.Record) error {
	if record == nil || record.TraceID == "" {
		return audit.NewStorageError("memory", "store", fmt.Errorf("record has no trace ID"))
	}
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError("memory", "store", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.TraceID] = cloneRecord(record)
	return nil
}

// Get returns the record for traceID.
func (s *MemoryStorage) Get(ctx context.Context, traceID string) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[traceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", audit.ErrNotFound, traceID)
	}
	return cloneRecord(record), nil
}

// Query returns the matching records, sorted and paginated.
func (s *MemoryStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, audit.NewStorageError("memory", "query", err)
	}
	return s.selectRecords(query), nil
}

// QueryStream delivers the matching records on a channel.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *audit.Query) (<-chan *audit.Record, <-chan error, error) {
	recordsCh := make(chan *audit.Record, streamBuffer)
	errCh := make(chan error, 1)

	// Snapshot under the lock so slow consumers do not block writers.
	results := s.selectRecords(query)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		for _, record := range results {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of matching records. Pagination is ignored.
func (s *MemoryStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if Matches(record, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes the matching records. Pagination is ignored.
func (s *MemoryStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, audit.NewStorageError("memory", "delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for traceID, record := range s.records {
		if Matches(record, query) {
			delete(s.records, traceID)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close drops all records.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*audit.Record)
	return nil
}

// Size returns the number of stored records.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func (s *MemoryStorage) selectRecords(query *audit.Query) []*audit.Record {
	s.mu.RLock()
	results := make([]*audit.Record, 0)
	for _, record := range s.records {
		if Matches(record, query) {
			results = append(results, cloneRecord(record))
		}
	}
	s.mu.RUnlock()

	if query == nil {
		query = &audit.Query{}
	}
	SortRecords(results, query.SortBy, query.SortOrder)
	return Paginate(results, query.Limit, query.Offset)
}

// Matches reports whether record satisfies every filter in query. A nil
// query matches everything.
func Matches(record *audit.Record, query *audit.Query) bool {
	if query == nil {
		return true
	}

	if query.StartTime != nil && record.DecidedAt.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && record.DecidedAt.After(*query.EndTime) {
		return false
	}
	if query.RecordedBefore != nil && !record.RecordedAt.Before(*query.RecordedBefore) {
		return false
	}

	if len(query.TraceIDs) > 0 && !slices.Contains(query.TraceIDs, record.TraceID) {
		return false
	}
	if query.ModelVersion != "" && record.ModelVersion != query.ModelVersion {
		return false
	}
	if query.DataHash != "" && record.DataHash != query.DataHash {
		return false
	}
	if query.Allowed != nil && record.Allowed != *query.Allowed {
		return false
	}

	if query.MinConfidence != nil && record.Confidence < *query.MinConfidence {
		return false
	}
	if query.MaxConfidence != nil && record.Confidence > *query.MaxConfidence {
		return false
	}

	return true
}

// SortRecords orders records by sortBy ("decided_at" when empty) in
// sortOrder ("desc" when empty). Ties fall back to trace ID ascending.
func SortRecords(records []*audit.Record, sortBy, sortOrder string) {
	desc := sortOrder != "asc"

	slices.SortStableFunc(records, func(a, b *audit.Record) int {
		var c int
		switch sortBy {
		case audit.SortByRecordedAt:
			c = a.RecordedAt.Compare(b.RecordedAt)
		case audit.SortByConfidence:
			switch {
			case a.Confidence < b.Confidence:
				c = -1
			case a.Confidence > b.Confidence:
				c = 1
			}
		default:
			c = a.DecidedAt.Compare(b.DecidedAt)
		}
		if desc {
			c = -c
		}
		if c == 0 {
			switch {
			case a.TraceID < b.TraceID:
				c = -1
			case a.TraceID > b.TraceID:
				c = 1
			}
		}
		return c
	})
}

// Paginate applies offset then limit. A zero limit keeps everything after
// the offset.
func Paginate(records []*audit.Record, limit, offset int) []*audit.Record {
	if offset >= len(records) {
		return []*audit.Record{}
	}
	if offset > 0 {
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

func cloneRecord(r *audit.Record) *audit.Record {
	out := *r
	out.Reasons = slices.Clone(r.Reasons)
	if r.Document != nil {
		doc := *r.Document
		out.Document = &doc
	}
	return &out
}
