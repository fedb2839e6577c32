package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/audit/storage"
	"mercator-hq/lucid/pkg/config"
)

var now = time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// seedAged stores one record per age, recorded that many days before now.
func seedAged(t *testing.T, s audit.Storage, agesInDays ...int) {
	t.Helper()
	for i, age := range agesInDays {
		recordedAt := now.AddDate(0, 0, -age)
		traceID := fmt.Sprintf("trace-%016x", i)
		r := &audit.Record{
			ID:          fmt.Sprintf("id-%d", i),
			TraceID:     traceID,
			DecidedAt:   recordedAt,
			RecordedAt:  recordedAt,
			Reasons:     []string{},
			ContentHash: "hash",
			Document:    &audit.Document{TraceID: traceID},
		}
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}
}

func TestPruner_PruneByAge(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedAged(t, store, 1, 10, 29, 31, 100)

	p := NewPruner(store, config.RetentionConfig{Days: 30}, WithClock(clock))
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}
	if store.Size() != 3 {
		t.Errorf("Expected 3 remaining, got %d", store.Size())
	}
}

func TestPruner_Disabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedAged(t, store, 1, 400)

	p := NewPruner(store, config.RetentionConfig{}, WithClock(clock))
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 0 || store.Size() != 2 {
		t.Errorf("Expected nothing pruned, got %d deleted and %d remaining", deleted, store.Size())
	}
	if !p.Cutoff().IsZero() {
		t.Errorf("Expected zero cutoff, got %v", p.Cutoff())
	}
}

func TestPruner_PruneByCount(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedAged(t, store, 5, 4, 3, 2, 1)

	p := NewPruner(store, config.RetentionConfig{MaxRecords: 2}, WithClock(clock))
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted, got %d", deleted)
	}

	remaining, _ := store.Query(context.Background(), &audit.Query{SortBy: audit.SortByRecordedAt, SortOrder: "asc"})
	if len(remaining) != 2 {
		t.Fatalf("Expected 2 remaining, got %d", len(remaining))
	}
	// The two newest (ages 2 and 1) survive.
	if remaining[0].ID != "id-3" || remaining[1].ID != "id-4" {
		t.Errorf("Expected id-3 and id-4 to survive, got %s and %s", remaining[0].ID, remaining[1].ID)
	}
}

func TestPruner_AgeThenCount(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedAged(t, store, 60, 50, 20, 10, 5, 1)

	p := NewPruner(store, config.RetentionConfig{Days: 30, MaxRecords: 3}, WithClock(clock))

	pending, err := p.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if pending != 3 {
		t.Errorf("Expected 3 pending, got %d", pending)
	}
	if store.Size() != 6 {
		t.Error("Expected Pending to delete nothing")
	}

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 3 || store.Size() != 3 {
		t.Errorf("Expected 3 deleted and 3 remaining, got %d and %d", deleted, store.Size())
	}
}

func TestPruner_ArchiveBeforeDelete(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedAged(t, store, 1, 45, 90)
	archiveDir := filepath.Join(t.TempDir(), "archives")

	p := NewPruner(store, config.RetentionConfig{
		Days:                30,
		ArchiveBeforeDelete: true,
		ArchivePath:         archiveDir,
	}, WithClock(clock))

	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		t.Fatalf("Expected archive directory, got %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 archive, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "audit-age-20260601-") || !strings.HasSuffix(name, ArchiveExt) {
		t.Errorf("Unexpected archive name %s", name)
	}

	archived, err := ReadArchive(filepath.Join(archiveDir, name))
	if err != nil {
		t.Fatalf("ReadArchive() failed: %v", err)
	}
	if len(archived) != 2 {
		t.Errorf("Expected 2 archived records, got %d", len(archived))
	}
}

func TestPruner_ArchiveSingleRecord(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedAged(t, store, 1, 2)
	archiveDir := t.TempDir()

	p := NewPruner(store, config.RetentionConfig{
		MaxRecords:          1,
		ArchiveBeforeDelete: true,
		ArchivePath:         archiveDir,
	}, WithClock(clock))

	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(archiveDir, "audit-count-*"+ArchiveExt))
	if len(matches) != 1 {
		t.Fatalf("Expected 1 count archive, got %v", matches)
	}
	archived, err := ReadArchive(matches[0])
	if err != nil {
		t.Fatalf("ReadArchive() failed: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != "id-1" {
		t.Errorf("Expected the older record id-1 archived, got %+v", archived)
	}
}

func TestPruner_NoArchiveWhenNothingExpired(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedAged(t, store, 1)
	archiveDir := filepath.Join(t.TempDir(), "archives")

	p := NewPruner(store, config.RetentionConfig{Days: 30, ArchiveBeforeDelete: true, ArchivePath: archiveDir}, WithClock(clock))
	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if _, err := os.Stat(archiveDir); !os.IsNotExist(err) {
		t.Error("Expected no archive directory when nothing was pruned")
	}
}

// brokenStorage fails every delete.
type brokenStorage struct {
	*storage.MemoryStorage
}

func (brokenStorage) Delete(context.Context, *audit.Query) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestPruner_DeleteFailure(t *testing.T) {
	store := brokenStorage{storage.NewMemoryStorage()}
	seedAged(t, store, 40)

	p := NewPruner(store, config.RetentionConfig{Days: 30}, WithClock(clock))
	_, err := p.Prune(context.Background())

	var rerr *audit.RetentionError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected *audit.RetentionError, got %v", err)
	}
	if rerr.RetentionDays != 30 {
		t.Errorf("Expected retention days 30, got %d", rerr.RetentionDays)
	}
}
