package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/audit/export"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/telemetry/metrics"
)

// ArchiveExt is the extension of archive files.
const ArchiveExt = ".json.zst"

// deleteBatch bounds the number of trace IDs in one Delete call.
const deleteBatch = 500

// Option configures a Pruner.
type Option func(*Pruner)

// WithMetrics counts pruned records on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(p *Pruner) {
		p.metrics = collector
	}
}

// WithClock overrides the clock used for the age cutoff and archive names.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

// Pruner enforces retention on audit records.
type Pruner struct {
	storage   audit.Storage
	config    config.RetentionConfig
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	scheduler *Scheduler
}

// NewPruner creates a pruner over storage.
func NewPruner(storage audit.Storage, cfg config.RetentionConfig, opts ...Option) *Pruner {
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = config.DefaultAuditRetentionArchivePath
	}

	p := &Pruner{
		storage: storage,
		config:  cfg,
		logger:  slog.Default().With("component", "audit.retention"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes records recorded more than Days ago, then, if more than
// MaxRecords remain, the oldest ones by recording time. A zero setting
// disables its phase. It returns the number of records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.Days > 0 {
		deleted, err := p.pruneByAge(ctx)
		total += deleted
		if err != nil {
			p.metrics.RecordAuditPruned(total)
			return total, audit.NewRetentionError(p.config.Days, fmt.Errorf("prune by age failed: %w", err))
		}
		p.logger.Info("pruned records by age",
			"deleted_count", deleted,
			"retention_days", p.config.Days,
		)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		total += deleted
		if err != nil {
			p.metrics.RecordAuditPruned(total)
			return total, audit.NewRetentionError(p.config.Days, fmt.Errorf("prune by count failed: %w", err))
		}
		p.logger.Info("pruned records by count",
			"deleted_count", deleted,
			"max_records", p.config.MaxRecords,
		)
	}

	p.metrics.RecordAuditPruned(total)

	if total == 0 {
		p.logger.Debug("no records pruned",
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Info("audit pruning completed",
			"total_deleted", total,
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	}

	return total, nil
}

// Pending reports how many records Prune would delete now, without
// deleting anything.
func (p *Pruner) Pending(ctx context.Context) (int64, error) {
	var byAge int64
	if p.config.Days > 0 {
		n, err := p.storage.Count(ctx, p.ageQuery())
		if err != nil {
			return 0, err
		}
		byAge = n
	}

	if p.config.MaxRecords <= 0 {
		return byAge, nil
	}

	total, err := p.storage.Count(ctx, nil)
	if err != nil {
		return 0, err
	}
	if excess := total - byAge - p.config.MaxRecords; excess > 0 {
		return byAge + excess, nil
	}
	return byAge, nil
}

// Cutoff returns the recording time before which records are expired, or
// the zero time when age pruning is off.
func (p *Pruner) Cutoff() time.Time {
	if p.config.Days <= 0 {
		return time.Time{}
	}
	return p.now().AddDate(0, 0, -p.config.Days)
}

func (p *Pruner) ageQuery() *audit.Query {
	cutoff := p.Cutoff()
	return &audit.Query{RecordedBefore: &cutoff}
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	query := p.ageQuery()

	p.logger.Debug("pruning by age",
		"cutoff_time", *query.RecordedBefore,
		"retention_days", p.config.Days,
	)

	if p.config.ArchiveBeforeDelete {
		records, err := p.storage.Query(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("failed to query records for archiving: %w", err)
		}
		if _, err := p.archive(ctx, "age", records); err != nil {
			return 0, err
		}
	}

	return p.storage.Delete(ctx, query)
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count <= p.config.MaxRecords {
		p.logger.Debug("record count within limit",
			"current", count,
			"max", p.config.MaxRecords,
		)
		return 0, nil
	}

	excess := count - p.config.MaxRecords
	p.logger.Info("record count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"to_delete", excess,
	)

	oldest, err := p.storage.Query(ctx, &audit.Query{
		SortBy:    audit.SortByRecordedAt,
		SortOrder: "asc",
		Limit:     int(excess),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query oldest records: %w", err)
	}

	if p.config.ArchiveBeforeDelete {
		if _, err := p.archive(ctx, "count", oldest); err != nil {
			return 0, err
		}
	}

	var deleted int64
	for start := 0; start < len(oldest); start += deleteBatch {
		end := min(start+deleteBatch, len(oldest))
		ids := make([]string, 0, end-start)
		for _, r := range oldest[start:end] {
			ids = append(ids, r.TraceID)
		}

		n, err := p.storage.Delete(ctx, &audit.Query{TraceIDs: ids})
		deleted += n
		if err != nil {
			return deleted, fmt.Errorf("delete failed: %w", err)
		}
	}
	return deleted, nil
}

// archive writes records as a zstd-compressed JSON array and returns the
// archive path. Nothing is written for an empty slice.
func (p *Pruner) archive(ctx context.Context, reason string, records []*audit.Record) (string, error) {
	if len(records) == 0 {
		p.logger.Debug("no records to archive")
		return "", nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("audit-%s-%s%s", reason, p.now().UTC().Format("20060102-150405.000000000"), ArchiveExt)
	path := filepath.Join(p.config.ArchivePath, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return "", fmt.Errorf("failed to create zstd writer: %w", err)
	}

	// ExportStream always writes an array, even for a single record.
	recordsCh := make(chan *audit.Record, len(records))
	for _, r := range records {
		recordsCh <- r
	}
	close(recordsCh)

	if err := export.NewJSONExporter(false).ExportStream(ctx, recordsCh, zw); err != nil {
		zw.Close()
		return "", fmt.Errorf("failed to export records to archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync archive: %w", err)
	}

	p.logger.Info("audit records archived",
		"archive_file", path,
		"record_count", len(records),
	)
	return path, nil
}

// ReadArchive decodes an archive written by the pruner.
func ReadArchive(path string) ([]*audit.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd stream: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress archive: %w", err)
	}

	var records []*audit.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode archive: %w", err)
	}
	return records, nil
}

// Start runs Prune on the configured schedule until ctx is done or Stop is
// called.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled prune, or nil.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
