// Package jobs runs the bulk progress maintenance tasks over CRM contacts:
// migration to the hierarchical layout, rollback, and completion backfill.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"hedgehog-learn/internal/concurrency"
	"hedgehog-learn/internal/hubspot"
)

// DefaultBatchSize is the contact search page size.
const DefaultBatchSize = 50

// CRM is the contact access the jobs need.
type CRM interface {
	GetContact(ctx context.Context, id string, props ...string) (*hubspot.Contact, error)
	UpdateContactProperties(ctx context.Context, id string, props map[string]string) error
	EachContactWithProperty(ctx context.Context, prop string, batch int, fn func([]hubspot.Contact) error) error
}

type Options struct {
	// DryRun and Verify compute everything but write nothing to the CRM.
	DryRun bool
	Verify bool
	// ContactID limits the run to one contact.
	ContactID  string
	BatchSize  int
	SkipSynced bool
	// OutputDir receives the summary, report and snapshot files.
	OutputDir string
	Workers   int
}

func (o Options) live() bool { return !o.DryRun && !o.Verify }

func (o Options) batch() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// Timing is embedded in every job summary.
type Timing struct {
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (t *Timing) finish(start, end time.Time) {
	t.EndTime = end.UTC().Format(time.RFC3339)
	t.DurationSeconds = int(end.Sub(start).Round(time.Second) / time.Second)
}

type Runner struct {
	CRM      CRM
	Property string
	Log      *zap.Logger

	now func() time.Time
}

func NewRunner(crm CRM, property string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if property == "" {
		property = "hhl_progress_state"
	}
	return &Runner{CRM: crm, Property: property, Log: log, now: time.Now}
}

func (r *Runner) start() (time.Time, Timing) {
	t := r.now()
	return t, Timing{StartTime: t.UTC().Format(time.RFC3339)}
}

// eachContact calls fn for the single requested contact or for every contact
// carrying the progress property, one search page at a time.
func (r *Runner) eachContact(ctx context.Context, opts Options, fn func(ctx context.Context, id string)) error {
	if opts.ContactID != "" {
		fn(ctx, opts.ContactID)
		return nil
	}
	page := 0
	return r.CRM.EachContactWithProperty(ctx, r.Property, opts.batch(), func(contacts []hubspot.Contact) error {
		page++
		r.Log.Info("processing batch", zap.Int("batch", page), zap.Int("contacts", len(contacts)))
		concurrency.ForEach(ctx, contacts, concurrency.ParallelOptions{MaxWorkers: opts.Workers},
			func(ctx context.Context, _ int, c hubspot.Contact) error {
				fn(ctx, c.ID)
				return nil
			})
		return ctx.Err()
	})
}

func (r *Runner) readState(ctx context.Context, id string) (string, error) {
	c, err := r.CRM.GetContact(ctx, id, r.Property, "email")
	if err != nil {
		return "", err
	}
	return c.Properties[r.Property], nil
}

// counter guards the shared metrics of a run.
type counter struct{ mu sync.Mutex }

func (c *counter) do(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

func writeFile(dir, name string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func indent(raw string) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return []byte(raw)
	}
	return buf.Bytes()
}
