package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"hedgehog-learn/internal/progress"
)

const snapshotsDir = "snapshots"

type MigrationMetrics struct {
	TotalContacts    int `json:"total_contacts"`
	Migrated         int `json:"migrated"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
	ValidationErrors int `json:"validation_errors"`
	Timing
}

type MigrationReport struct {
	Metrics MigrationMetrics
	Checks  []progress.MigrationCheck
}

func snapshotPath(dir, id, stage string) string {
	return filepath.Join(dir, snapshotsDir, fmt.Sprintf("contact-%s-%s.json", id, stage))
}

// Migrate nests flat pathway progress under courses for every contact. Each
// contact's before and after states are snapshotted and checked for lost
// progress; a contact that fails the check is not written.
func (r *Runner) Migrate(ctx context.Context, defs progress.Definitions, opts Options) (MigrationReport, error) {
	start, timing := r.start()
	rep := MigrationReport{Metrics: MigrationMetrics{Timing: timing}, Checks: []progress.MigrationCheck{}}
	if err := os.MkdirAll(filepath.Join(opts.OutputDir, snapshotsDir), 0o755); err != nil {
		return rep, err
	}

	var mu counter
	err := r.eachContact(ctx, opts, func(ctx context.Context, id string) {
		mu.do(func() { rep.Metrics.TotalContacts++ })
		check, outcome := r.migrateContact(ctx, defs, opts, id)
		mu.do(func() {
			if check != nil {
				rep.Checks = append(rep.Checks, *check)
				if !check.Success {
					rep.Metrics.ValidationErrors++
				}
			}
			switch outcome {
			case outcomeDone:
				rep.Metrics.Migrated++
			case outcomeSkipped:
				rep.Metrics.Skipped++
			case outcomeFailed:
				rep.Metrics.Failed++
			}
		})
	})
	rep.Metrics.finish(start, r.now())
	if err != nil {
		return rep, err
	}

	if _, err := writeFile(opts.OutputDir, "migration-summary.json", rep.Metrics); err != nil {
		return rep, err
	}
	if _, err := writeFile(opts.OutputDir, "validation-report.json", rep.Checks); err != nil {
		return rep, err
	}
	r.Log.Info("migration finished",
		zap.Int("total", rep.Metrics.TotalContacts),
		zap.Int("migrated", rep.Metrics.Migrated),
		zap.Int("skipped", rep.Metrics.Skipped),
		zap.Int("failed", rep.Metrics.Failed),
		zap.Int("validation_errors", rep.Metrics.ValidationErrors))
	return rep, nil
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (r *Runner) migrateContact(ctx context.Context, defs progress.Definitions, opts Options, id string) (*progress.MigrationCheck, outcome) {
	log := r.Log.With(zap.String("contact", id))
	raw, err := r.readState(ctx, id)
	if err != nil {
		log.Error("migration error", zap.Error(err))
		return nil, outcomeFailed
	}
	if progress.IsEmptyRaw(raw) {
		log.Info("no progress data, skipping")
		return nil, outcomeSkipped
	}
	before, err := progress.Decode(raw)
	if err != nil {
		log.Error("invalid progress state", zap.Error(err))
		return nil, outcomeFailed
	}
	if err := os.WriteFile(snapshotPath(opts.OutputDir, id, "before"), indent(raw), 0o644); err != nil {
		log.Error("snapshot failed", zap.Error(err))
		return nil, outcomeFailed
	}

	after := progress.MigrateToHierarchical(before, defs)
	check := progress.ValidateMigration(id, before, after)
	if !check.Success {
		log.Error("migration validation failed", zap.Strings("errors", check.Errors))
		if opts.live() {
			return &check, outcomeFailed
		}
	}

	encoded, err := after.Encode()
	if err != nil {
		log.Error("encode failed", zap.Error(err))
		return &check, outcomeFailed
	}
	if err := os.WriteFile(snapshotPath(opts.OutputDir, id, "after"), indent(encoded), 0o644); err != nil {
		log.Error("snapshot failed", zap.Error(err))
		return &check, outcomeFailed
	}
	if opts.live() {
		if err := r.CRM.UpdateContactProperties(ctx, id, map[string]string{r.Property: encoded}); err != nil {
			log.Error("update failed", zap.Error(err))
			return &check, outcomeFailed
		}
		log.Info("migration complete")
	} else {
		log.Info("dry-run complete (no changes persisted)")
	}
	return &check, outcomeDone
}
