package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hedgehog-learn/internal/completion"
	"hedgehog-learn/internal/jobs"
)

var (
	jobOpts   jobs.Options
	recompute bool
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Bulk maintenance of the hhl_progress_state contact property",
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Nest flat pathway module progress under courses",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore pre-migration snapshots",
	Args:  cobra.NoArgs,
	RunE:  runRollback,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute course and pathway completion from module progress",
	Args:  cobra.NoArgs,
	RunE:  runBackfill,
}

func init() {
	pf := progressCmd.PersistentFlags()
	pf.BoolVar(&jobOpts.DryRun, "dry-run", false, "Compute changes without writing to the CRM")
	pf.BoolVar(&jobOpts.Verify, "verify", false, "Validate every contact without writing to the CRM")
	pf.StringVar(&jobOpts.ContactID, "contact-id", "", "Process a single contact")
	pf.IntVar(&jobOpts.BatchSize, "batch-size", jobs.DefaultBatchSize, "Contacts per search page")
	pf.StringVar(&jobOpts.OutputDir, "output-dir", "progress-output", "Directory for summaries, reports and snapshots")
	pf.IntVar(&jobOpts.Workers, "workers", 10, "Contacts processed concurrently per page")

	backfillCmd.Flags().BoolVar(&jobOpts.SkipSynced, "skip-synced", false, "Count contacts whose flags already match as skipped")
	rollbackCmd.Flags().BoolVar(&recompute, "recompute", false, "Flatten the current state of contacts that have no snapshot")

	progressCmd.AddCommand(migrateCmd, rollbackCmd, backfillCmd)
}

// jobSetup loads the content metadata and a runner over the CRM.
func jobSetup() (*jobs.Runner, *completion.Metadata, error) {
	hub, err := hubspotClient()
	if err != nil {
		return nil, nil, err
	}
	cat, err := loadCatalog()
	if err != nil {
		return nil, nil, err
	}
	return jobs.NewRunner(hub, cfg.ProgressProperty, logger), completion.FromCatalog(cat, logger), nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	runner, meta, err := jobSetup()
	if err != nil {
		return err
	}
	rep, err := runner.Migrate(ctx, meta, jobOpts)
	if err != nil {
		return err
	}
	m := rep.Metrics
	fmt.Fprintf(cmd.OutOrStdout(), "migrate: %d contacts, %d migrated, %d skipped, %d failed, %d validation errors (%ds)\n",
		m.TotalContacts, m.Migrated, m.Skipped, m.Failed, m.ValidationErrors, m.DurationSeconds)
	return exitStatus(m.Failed, m.ValidationErrors)
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	hub, err := hubspotClient()
	if err != nil {
		return err
	}
	runner := jobs.NewRunner(hub, cfg.ProgressProperty, logger)
	m, err := runner.Rollback(ctx, jobs.RollbackOptions{Options: jobOpts, Recompute: recompute})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rollback: %d contacts, %d rolled back, %d without snapshot, %d failed (%ds)\n",
		m.TotalContacts, m.RolledBack, m.NoSnapshot, m.Failed, m.DurationSeconds)
	return exitStatus(m.Failed, 0)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	runner, meta, err := jobSetup()
	if err != nil {
		return err
	}
	rep, err := runner.Backfill(ctx, meta, jobOpts)
	if err != nil {
		return err
	}
	m := rep.Metrics
	fmt.Fprintf(cmd.OutOrStdout(),
		"backfill: %d contacts, %d processed, %d updated, %d already synced, %d failed, %d validation errors; %d courses and %d pathways updated (%ds)\n",
		m.TotalContacts, m.Processed, m.Updated, m.SkippedSynced, m.Failed, m.ValidationErrors,
		m.CoursesUpdated, m.PathwaysUpdated, m.DurationSeconds)
	return exitStatus(m.Failed, m.ValidationErrors)
}

func exitStatus(failed, invalid int) error {
	if failed == 0 && invalid == 0 {
		return nil
	}
	logger.Error("job finished with errors", zap.Int("failed", failed), zap.Int("validation_errors", invalid))
	return errFailed
}
