// Package retention enforces how long audit records are kept.
//
// A Pruner deletes records in two phases: first every record recorded more
// than Days ago, then, while more than MaxRecords remain, the oldest by
// recording time. Either phase is off when its setting is zero. With
// ArchiveBeforeDelete the doomed records are first written to
// ArchivePath as a zstd-compressed JSON array (audit-<phase>-<time>.json.zst);
// ReadArchive reads one back.
//
//	pruner := retention.NewPruner(store, cfg.Audit.Retention, retention.WithMetrics(collector))
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
//
// Start schedules Prune with the standard cron expression in PruneSchedule.
package retention
