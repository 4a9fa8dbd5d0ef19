package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"hedgehog-learn/internal/content"
	"hedgehog-learn/internal/domain"
	"hedgehog-learn/internal/hubspot"
)

func problemKind(path string) Kind {
	dir := filepath.Base(filepath.Dir(path))
	switch dir {
	case "courses":
		return Courses
	case "pathways":
		return Pathways
	}
	if filepath.Base(filepath.Dir(filepath.Dir(path))) == "modules" {
		return Modules
	}
	return ""
}

// OrphanReport lists published rows that point at content which no longer exists.
type OrphanReport struct {
	Timestamp string `json:"timestamp"`
	Summary   struct {
		TotalOrphans     int `json:"totalOrphans"`
		OrphanedCourses  int `json:"orphanedCourses"`
		OrphanedPathways int `json:"orphanedPathways"`
	} `json:"summary"`
	Errors          []content.ReferenceError `json:"errors"`
	Recommendations []string                 `json:"recommendations"`
}

// DetectOrphans checks the live course and pathway rows against the local
// catalog. Tables without an id are skipped.
func (s *Syncer) DetectOrphans(ctx context.Context) (*OrphanReport, error) {
	rep := &OrphanReport{Timestamp: time.Now().UTC().Format(time.RFC3339), Errors: []content.ReferenceError{}}
	modules := s.Catalog.ModuleSlugs()
	courses := s.Catalog.CourseSlugs()

	if id := s.Tables[Courses]; id != "" {
		rows, err := s.HubDB.ListRows(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("orphans: list course rows: %w", err)
		}
		for _, r := range rows {
			slug := rowSlug(r)
			errs := content.ValidateCourseReferences(slug, s.jsonSlugs(r, "module_slugs_json"), s.jsonBlocks(r), modules)
			if len(errs) > 0 {
				rep.Errors = append(rep.Errors, errs...)
				rep.Summary.OrphanedCourses++
			}
		}
	}

	if id := s.Tables[Pathways]; id != "" {
		rows, err := s.HubDB.ListRows(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("orphans: list pathway rows: %w", err)
		}
		for _, r := range rows {
			slug := rowSlug(r)
			errs := content.ValidatePathwayReferences(slug,
				s.jsonSlugs(r, "module_slugs_json"), s.jsonSlugs(r, "course_slugs_json"),
				s.jsonBlocks(r), modules, courses)
			if len(errs) > 0 {
				rep.Errors = append(rep.Errors, errs...)
				rep.Summary.OrphanedPathways++
			}
		}
	}

	rep.Summary.TotalOrphans = len(rep.Errors)
	if rep.Summary.TotalOrphans > 0 {
		rep.Recommendations = []string{
			"Review the orphaned references listed above",
			"Either create the missing content or update the JSON files to remove invalid references",
			"Run sync with --dry-run to validate before publishing",
		}
	} else {
		rep.Recommendations = []string{
			"Continue monitoring for orphaned references",
			"Ensure sync validation remains enabled",
		}
	}
	return rep, nil
}

func rowSlug(r hubspot.Row) string {
	if r.Path != "" {
		return r.Path
	}
	if s := r.StringValue("slug"); s != "" {
		return s
	}
	return "unknown"
}

// jsonSlugs decodes a JSON array column. Malformed values are logged and treated as empty.
func (s *Syncer) jsonSlugs(r hubspot.Row, col string) []string {
	raw := r.StringValue(col)
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.Log.Warn("invalid json column", zap.String("row", rowSlug(r)), zap.String("column", col), zap.Error(err))
		return nil
	}
	return out
}

func (s *Syncer) jsonBlocks(r hubspot.Row) []domain.ContentBlock {
	raw := r.StringValue("content_blocks_json")
	if raw == "" {
		return nil
	}
	var out []domain.ContentBlock
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.Log.Warn("invalid json column", zap.String("row", rowSlug(r)), zap.String("column", "content_blocks_json"), zap.Error(err))
		return nil
	}
	return out
}
