package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/audit/retention"
	"mercator-hq/lucid/pkg/cli"
)

var auditPruneFlags struct {
	days       int
	maxRecords int64
	archive    bool
	dryRun     bool
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy now",
	Long: `Delete audit records older than the retention period and, when a record
cap is set, the oldest records above it. With archiving enabled the records
are first written to a zstd-compressed archive in the archive directory.

Flags override the audit.retention section of the configuration.

Examples:
  # Show what would be deleted
  lucid audit prune --dry-run

  # Keep 30 days, archiving what is removed
  lucid audit prune --days 30 --archive`,
	RunE: pruneAudit,
}

func init() {
	auditCmd.AddCommand(auditPruneCmd)

	auditPruneCmd.Flags().IntVar(&auditPruneFlags.days, "days", -1, "retention in days (default from config, 0 keeps everything)")
	auditPruneCmd.Flags().Int64Var(&auditPruneFlags.maxRecords, "max-records", -1, "record cap (default from config, 0 means no cap)")
	auditPruneCmd.Flags().BoolVar(&auditPruneFlags.archive, "archive", false, "archive records before deleting them")
	auditPruneCmd.Flags().BoolVar(&auditPruneFlags.dryRun, "dry-run", false, "report how many records would be deleted")
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	retentionCfg := cfg.Audit.Retention
	if auditPruneFlags.days >= 0 {
		retentionCfg.Days = auditPruneFlags.days
	}
	if auditPruneFlags.maxRecords >= 0 {
		retentionCfg.MaxRecords = auditPruneFlags.maxRecords
	}
	if auditPruneFlags.archive {
		retentionCfg.ArchiveBeforeDelete = true
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := commandContext(cmd)
	defer stop()

	pruner := retention.NewPruner(store, retentionCfg)
	out := stdout(cmd)

	if auditPruneFlags.dryRun {
		pending, err := pruner.Pending(ctx)
		if err != nil {
			return cli.NewCommandError("audit prune", err)
		}
		if cutoff := pruner.Cutoff(); !cutoff.IsZero() {
			fmt.Fprintf(out, "Cutoff: %s\n", cutoff.UTC().Format(time.RFC3339))
		}
		fmt.Fprintf(out, "%d record(s) would be pruned\n", pending)
		return nil
	}

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		return cli.NewCommandError("audit prune", err)
	}
	fmt.Fprintf(out, "✓ Pruned %d record(s)\n", deleted)
	return nil
}
