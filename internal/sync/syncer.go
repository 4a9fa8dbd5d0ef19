package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"hedgehog-learn/internal/content"
	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/mappers"
)

// HubDB is the subset of the HubSpot client a sync needs.
type HubDB interface {
	ListRows(ctx context.Context, tableID string) ([]hubspot.Row, error)
	CreateRow(ctx context.Context, tableID string, row hubspot.Row) (hubspot.Row, error)
	UpdateDraftRow(ctx context.Context, tableID, rowID string, row hubspot.Row) (hubspot.Row, error)
	PurgeDraftRow(ctx context.Context, tableID, rowID string) error
	PublishTable(ctx context.Context, tableID string) error
}

// Tables maps each kind to its HubDB table id.
type Tables map[Kind]string

// Syncer pushes a content tree into HubDB: load, validate, map, diff, apply, publish.
type Syncer struct {
	HubDB   HubDB
	Tables  Tables
	Catalog *content.Catalog
	Log     *zap.Logger
	// Out receives dry-run payloads.
	Out io.Writer

	sleep func(context.Context, time.Duration) error
}

func New(hub HubDB, tables Tables, cat *content.Catalog, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{HubDB: hub, Tables: tables, Catalog: cat, Log: log, Out: io.Discard, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Validate checks the references a sync of kind depends on. Modules have none.
func (s *Syncer) Validate(kind Kind) error {
	var errs content.ReferenceErrors
	switch kind {
	case Courses:
		errs = s.Catalog.ValidateCourses()
	case Pathways:
		errs = s.Catalog.ValidatePathways()
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ItemError is a content item that could not be mapped to a row.
type ItemError struct {
	Slug string
	Err  error
}

func (e *ItemError) Error() string { return e.Slug + ": " + e.Err.Error() }
func (e *ItemError) Unwrap() error { return e.Err }

// Rows maps the catalog content of kind into table rows. Items that fail to
// map, and content files that failed to load, are returned as problems.
func (s *Syncer) Rows(kind Kind, opts Options) ([]hubspot.Row, []error) {
	var (
		rows []hubspot.Row
		errs []error
	)
	add := func(slug string) func(hubspot.Row, error) {
		return func(r hubspot.Row, err error) {
			if err != nil {
				errs = append(errs, &ItemError{Slug: slug, Err: err})
				return
			}
			rows = append(rows, r)
		}
	}

	switch kind {
	case Modules:
		for _, m := range s.Catalog.Modules {
			add(m.Slug)(mappers.ModuleRow(m, mappers.ModuleOptions{StripLeadingH1: opts.StripLeadingH1}))
		}
	case Courses:
		for _, c := range s.Catalog.Courses {
			add(c.Slug)(mappers.CourseRow(c, s.Catalog))
		}
	case Pathways:
		for _, p := range s.Catalog.Pathways {
			add(p.Slug)(mappers.PathwayRow(p, s.Catalog))
		}
	}
	for _, p := range s.Catalog.Problems {
		if problemKind(p.Path) == kind {
			errs = append(errs, p)
		}
	}
	return rows, errs
}

// protectedPaths returns the row paths that skipped items still own. A module
// is keyed by its directory name. A course or pathway file that did not
// parse has no known slug, so ok is false and nothing may be deleted.
func protectedPaths(problems []error) (paths map[string]bool, ok bool) {
	paths = map[string]bool{}
	ok = true
	for _, err := range problems {
		var item *ItemError
		var prob content.Problem
		switch {
		case errors.As(err, &item):
			paths[normPath(item.Slug)] = true
		case errors.As(err, &prob) && problemKind(prob.Path) == Modules:
			paths[normPath(filepath.Base(filepath.Dir(prob.Path)))] = true
		default:
			ok = false
		}
	}
	return paths, ok
}

// Run syncs one table. Reference errors abort before anything is written.
func (s *Syncer) Run(ctx context.Context, kind Kind, opts Options) (Summary, error) {
	sum := Summary{Kind: kind, DryRun: opts.DryRun}
	log := s.Log.With(zap.String("kind", string(kind)))

	if err := s.Validate(kind); err != nil {
		return sum, err
	}

	rows, problems := s.Rows(kind, opts)
	for _, err := range problems {
		sum.Failed++
		log.Error("content item skipped", zap.Error(err))
	}
	sum.Planned = len(rows)
	if opts.DeleteMissing {
		protected, ok := protectedPaths(problems)
		if !ok {
			log.Warn("unparsed content files found, rows missing from content are kept", zap.Int("problems", len(problems)))
			opts.DeleteMissing = false
		}
		opts.Protected = protected
	}

	if opts.DryRun {
		enc := json.NewEncoder(s.Out)
		enc.SetIndent("", "  ")
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return sum, err
			}
		}
		log.Info("dry run complete", zap.Int("rows", len(rows)))
		return sum, nil
	}

	tableID := s.Tables[kind]
	if tableID == "" {
		return sum, fmt.Errorf("sync %s: table id not configured", kind)
	}

	existing, err := s.HubDB.ListRows(ctx, tableID)
	if err != nil {
		return sum, fmt.Errorf("sync %s: fetch existing rows: %w", kind, err)
	}
	log.Info("fetched existing rows", zap.Int("rows", len(existing)))

	plan := Diff(rows, existing, opts)
	sum.Unchanged = plan.Unchanged

	first := true
	pace := func() error {
		if first {
			first = false
			return nil
		}
		return s.sleep(ctx, opts.RowDelay)
	}
	apply := func(action, path string, fn func() error) bool {
		if err := pace(); err != nil {
			return false
		}
		if err := fn(); err != nil {
			sum.Failed++
			log.Error("row "+action+" failed", zap.String("path", path), zap.Error(err))
			return false
		}
		log.Info("row "+action, zap.String("path", path))
		return true
	}

	for _, r := range plan.Create {
		if apply("created", r.Path, func() error { _, err := s.HubDB.CreateRow(ctx, tableID, r); return err }) {
			sum.Created++
		}
	}
	for _, u := range plan.Update {
		if apply("updated", u.Row.Path, func() error { _, err := s.HubDB.UpdateDraftRow(ctx, tableID, u.RowID, u.Row); return err }) {
			sum.Updated++
		}
	}
	for _, u := range plan.Archive {
		if apply("archived", u.Row.Path, func() error { _, err := s.HubDB.UpdateDraftRow(ctx, tableID, u.RowID, u.Row); return err }) {
			sum.Archived++
		}
	}
	for _, r := range plan.Delete {
		if apply("deleted", r.Path, func() error { return s.HubDB.PurgeDraftRow(ctx, tableID, r.ID) }) {
			sum.Deleted++
		}
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	if err := s.HubDB.PublishTable(ctx, tableID); err != nil {
		return sum, fmt.Errorf("sync %s: publish: %w", kind, err)
	}
	sum.Published = true
	log.Info("table published", zap.String("summary", sum.String()))
	return sum, nil
}

// RunAll syncs modules, courses then pathways. The whole catalog is
// validated first so a broken pathway stops the module sync too.
func (s *Syncer) RunAll(ctx context.Context, opts map[Kind]Options) ([]Summary, error) {
	if errs := s.Catalog.Validate(); len(errs) > 0 {
		return nil, errs
	}
	var out []Summary
	for _, k := range []Kind{Modules, Courses, Pathways} {
		sum, err := s.Run(ctx, k, opts[k])
		out = append(out, sum)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// IsReferenceError reports whether err came from reference validation.
func IsReferenceError(err error) bool {
	var re content.ReferenceErrors
	return errors.As(err, &re)
}
