package jobs

import (
	"context"

	"go.uber.org/zap"

	"hedgehog-learn/internal/completion"
	"hedgehog-learn/internal/progress"
)

type BackfillMetrics struct {
	TotalContacts    int `json:"total_contacts"`
	Processed        int `json:"processed"`
	Updated          int `json:"updated"`
	SkippedSynced    int `json:"skipped_synced"`
	Failed           int `json:"failed"`
	ValidationErrors int `json:"validation_errors"`
	CoursesUpdated   int `json:"courses_updated"`
	PathwaysUpdated  int `json:"pathways_updated"`
	Timing
}

type ContactChange struct {
	ContactID string              `json:"contact_id"`
	Changes   []completion.Change `json:"changes"`
}

type Failure struct {
	ContactID string `json:"contact_id"`
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
}

type BackfillReport struct {
	Metrics  BackfillMetrics
	Changes  []ContactChange
	Failures []Failure
}

// Backfill recomputes course and pathway completion flags from the content
// metadata and writes back the contacts whose flags changed.
func (r *Runner) Backfill(ctx context.Context, meta *completion.Metadata, opts Options) (BackfillReport, error) {
	start, timing := r.start()
	rep := BackfillReport{Metrics: BackfillMetrics{Timing: timing}}

	var mu counter
	err := r.eachContact(ctx, opts, func(ctx context.Context, id string) {
		mu.do(func() { rep.Metrics.TotalContacts++ })
		res := r.backfillContact(ctx, meta, opts, id)
		mu.do(func() {
			m := &rep.Metrics
			if res.failure != nil {
				rep.Failures = append(rep.Failures, *res.failure)
				m.Failed++
				if res.invalid {
					m.ValidationErrors++
				}
				return
			}
			m.Processed++
			changes := res.changes
			if res.empty {
				return
			}
			if len(changes) == 0 {
				if opts.SkipSynced {
					m.SkippedSynced++
				}
				return
			}
			m.Updated++
			rep.Changes = append(rep.Changes, ContactChange{ContactID: id, Changes: changes})
			for _, ch := range changes {
				if ch.Type == completion.KindCourse {
					m.CoursesUpdated++
				} else {
					m.PathwaysUpdated++
				}
			}
		})
	})
	rep.Metrics.finish(start, r.now())
	if err != nil {
		return rep, err
	}

	if _, err := writeFile(opts.OutputDir, "backfill-summary.json", rep.Metrics); err != nil {
		return rep, err
	}
	if len(rep.Changes) > 0 {
		if _, err := writeFile(opts.OutputDir, "backfill-changes.json", rep.Changes); err != nil {
			return rep, err
		}
	}
	if len(rep.Failures) > 0 {
		if _, err := writeFile(opts.OutputDir, "backfill-failures.json", rep.Failures); err != nil {
			return rep, err
		}
	}
	r.Log.Info("backfill finished",
		zap.Int("total", rep.Metrics.TotalContacts),
		zap.Int("updated", rep.Metrics.Updated),
		zap.Int("failed", rep.Metrics.Failed),
		zap.Int("courses_updated", rep.Metrics.CoursesUpdated),
		zap.Int("pathways_updated", rep.Metrics.PathwaysUpdated))
	return rep, nil
}

type backfillResult struct {
	changes []completion.Change
	failure *Failure
	// invalid marks an unparseable state; empty a contact without one.
	invalid bool
	empty   bool
}

func (r *Runner) backfillContact(ctx context.Context, meta *completion.Metadata, opts Options, id string) backfillResult {
	raw, err := r.readState(ctx, id)
	if err != nil {
		return backfillResult{failure: &Failure{ContactID: id, Error: err.Error()}}
	}
	if progress.IsEmptyRaw(raw) {
		r.Log.Debug("contact has no progress state, skipping", zap.String("contact", id))
		return backfillResult{empty: true}
	}
	st, err := progress.Decode(raw)
	if err != nil {
		return backfillResult{failure: &Failure{ContactID: id, Error: "Invalid JSON", Details: err.Error()}, invalid: true}
	}

	changes := meta.Backfill(st)
	if len(changes) == 0 {
		r.Log.Debug("contact already in sync", zap.String("contact", id))
		return backfillResult{}
	}
	r.Log.Info("completion flags changed", zap.String("contact", id), zap.Int("changes", len(changes)))
	if !opts.live() {
		return backfillResult{changes: changes}
	}
	encoded, err := st.Encode()
	if err == nil {
		err = r.CRM.UpdateContactProperties(ctx, id, map[string]string{r.Property: encoded})
	}
	if err != nil {
		return backfillResult{failure: &Failure{ContactID: id, Error: err.Error()}}
	}
	return backfillResult{changes: changes}
}
