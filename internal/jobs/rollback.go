package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"hedgehog-learn/internal/progress"
)

type RollbackMetrics struct {
	TotalContacts int `json:"total_contacts"`
	RolledBack    int `json:"rolled_back"`
	Failed        int `json:"failed"`
	NoSnapshot    int `json:"no_snapshot"`
	Timing
}

// RollbackOptions extends Options for rollback runs.
type RollbackOptions struct {
	Options
	// Recompute flattens the current state when a contact has no snapshot.
	Recompute bool
}

var snapshotRe = regexp.MustCompile(`^contact-(.+)-before\.json$`)

// Rollback restores each contact's pre-migration snapshot. Without a
// ContactID it walks every before snapshot in the output directory.
func (r *Runner) Rollback(ctx context.Context, opts RollbackOptions) (RollbackMetrics, error) {
	start, timing := r.start()
	m := RollbackMetrics{Timing: timing}
	dir := filepath.Join(opts.OutputDir, snapshotsDir)

	ids := []string{opts.ContactID}
	if opts.ContactID == "" {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return m, fmt.Errorf("snapshots directory not found: %s (run the migration first)", dir)
		}
		if err != nil {
			return m, err
		}
		ids = ids[:0]
		for _, e := range entries {
			if sm := snapshotRe.FindStringSubmatch(e.Name()); sm != nil {
				ids = append(ids, sm[1])
			}
		}
		sort.Strings(ids)
		r.Log.Info("found snapshots", zap.Int("count", len(ids)))
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		m.TotalContacts++
		switch err := r.rollbackContact(ctx, opts, id); {
		case err == nil:
			m.RolledBack++
		case errors.Is(err, fs.ErrNotExist):
			r.Log.Warn("no snapshot found, skipping", zap.String("contact", id))
			m.NoSnapshot++
		default:
			r.Log.Error("rollback error", zap.String("contact", id), zap.Error(err))
			m.Failed++
		}
	}
	m.finish(start, r.now())

	if _, err := writeFile(opts.OutputDir, "rollback-summary.json", m); err != nil {
		return m, err
	}
	return m, nil
}

func (r *Runner) rollbackContact(ctx context.Context, opts RollbackOptions, id string) error {
	raw, err := os.ReadFile(snapshotPath(opts.OutputDir, id, "before"))
	if errors.Is(err, fs.ErrNotExist) && opts.Recompute {
		return r.recomputeRollback(ctx, opts, id)
	}
	if err != nil {
		return err
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return errors.New("invalid snapshot format")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return err
	}
	if !opts.live() {
		r.Log.Info("verify complete (no changes persisted)", zap.String("contact", id), zap.Int("keys", len(obj)))
		return nil
	}
	return r.CRM.UpdateContactProperties(ctx, id, map[string]string{r.Property: compact.String()})
}

func (r *Runner) recomputeRollback(ctx context.Context, opts RollbackOptions, id string) error {
	raw, err := r.readState(ctx, id)
	if err != nil {
		return err
	}
	st, err := progress.Decode(raw)
	if err != nil {
		return err
	}
	flat, err := progress.Rollback(st).Encode()
	if err != nil {
		return err
	}
	r.Log.Info("no snapshot, flattened current state", zap.String("contact", id))
	if !opts.live() {
		return nil
	}
	return r.CRM.UpdateContactProperties(ctx, id, map[string]string{r.Property: flat})
}
