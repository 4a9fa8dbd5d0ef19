// Package completion decides course and pathway completion by comparing
// recorded module progress against the content definitions.
package completion

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"hedgehog-learn/internal/content"
	"hedgehog-learn/internal/progress"
	"hedgehog-learn/internal/validation"
)

type Kind string

const (
	KindCourse  Kind = "course"
	KindPathway Kind = "pathway"
)

// TimestampTolerance is how far an explicit completion may drift from the
// last child completion.
const TimestampTolerance = 5 * time.Minute

// Metadata maps courses to required modules and pathways to required courses
// (or modules, for pathways that list modules directly). Every listed child
// is required.
type Metadata struct {
	courses        map[string][]string
	pathways       map[string][]string
	pathwayModules map[string][]string
	log            *zap.Logger
}

func NewMetadata(courses, pathways map[string][]string) *Metadata {
	m := &Metadata{
		courses:        map[string][]string{},
		pathways:       map[string][]string{},
		pathwayModules: map[string][]string{},
		log:            zap.NewNop(),
	}
	for k, v := range courses {
		m.courses[k] = v
	}
	for k, v := range pathways {
		m.pathways[k] = v
	}
	return m
}

// FromCatalog builds metadata from the loaded content tree.
func FromCatalog(cat *content.Catalog, log *zap.Logger) *Metadata {
	m := NewMetadata(nil, nil)
	if log != nil {
		m.log = log
	}
	for _, c := range cat.Courses {
		if c.Slug != "" && c.Modules != nil {
			m.courses[c.Slug] = c.Modules
		}
	}
	for _, p := range cat.Pathways {
		if p.Slug == "" {
			continue
		}
		if len(p.Courses) > 0 {
			m.pathways[p.Slug] = p.Courses
		} else if len(p.Modules) > 0 {
			m.pathwayModules[p.Slug] = p.Modules
		}
	}
	m.log.Info("completion metadata loaded",
		zap.Int("courses", len(m.courses)),
		zap.Int("pathways", len(m.pathways)+len(m.pathwayModules)))
	return m
}

// CourseModules implements progress.Definitions.
func (m *Metadata) CourseModules(slug string) ([]string, bool) {
	v, ok := m.courses[slug]
	return v, ok
}

// PathwayCourses implements progress.Definitions.
func (m *Metadata) PathwayCourses(slug string) ([]string, bool) {
	v, ok := m.pathways[slug]
	return v, ok
}

// Counts is completed/total children.
type Counts struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type Result struct {
	Completed bool   `json:"completed"`
	Progress  Counts `json:"progress"`
	Percent   int    `json:"percent"`
}

func result(done, total int) Result {
	r := Result{Progress: Counts{Completed: done, Total: total}}
	if total > 0 {
		r.Completed = done == total
		r.Percent = done * 100 / total
	}
	return r
}

// CourseCompletion counts definition modules completed in mods. Unknown or
// empty courses are never complete.
func (m *Metadata) CourseCompletion(slug string, mods map[string]*progress.ModuleProgress) Result {
	required, ok := m.courses[slug]
	if !ok {
		m.log.Warn("course metadata not found", zap.String("course", slug))
		return Result{}
	}
	done := 0
	for _, ms := range required {
		if mp := mods[ms]; mp != nil && mp.Completed {
			done++
		}
	}
	return result(done, len(required))
}

// PathwayCompletion counts definition courses completed in p. Pathways that
// list modules directly are counted against p.Modules.
func (m *Metadata) PathwayCompletion(slug string, p *progress.PathwayProgress) Result {
	if p == nil {
		p = &progress.PathwayProgress{}
	}
	if required, ok := m.pathways[slug]; ok {
		done := 0
		for _, cs := range required {
			if c := p.Courses[cs]; c != nil && c.Completed {
				done++
			}
		}
		return result(done, len(required))
	}
	if required, ok := m.pathwayModules[slug]; ok {
		done := 0
		for _, ms := range required {
			if mp := p.Modules[ms]; mp != nil && mp.Completed {
				done++
			}
		}
		return result(done, len(required))
	}
	m.log.Warn("pathway metadata not found", zap.String("pathway", slug))
	return Result{}
}

// ValidateCourseCompletion rejects an explicit course completion whose modules
// are not all completed.
func (m *Metadata) ValidateCourseCompletion(slug string, c *progress.CourseProgress) error {
	var mods map[string]*progress.ModuleProgress
	if c != nil {
		mods = c.Modules
	}
	r := m.CourseCompletion(slug, mods)
	if r.Completed {
		return nil
	}
	return validation.NewError(validation.InvalidEventData,
		fmt.Sprintf("Course not actually complete: %d/%d modules completed", r.Progress.Completed, r.Progress.Total)).
		WithContext(map[string]any{"type": string(KindCourse), "slug": slug})
}

// ValidatePathwayCompletion is ValidateCourseCompletion for pathways.
func (m *Metadata) ValidatePathwayCompletion(slug string, p *progress.PathwayProgress) error {
	r := m.PathwayCompletion(slug, p)
	if r.Completed {
		return nil
	}
	unit := "courses"
	if _, ok := m.pathwayModules[slug]; ok {
		unit = "modules"
	}
	return validation.NewError(validation.InvalidEventData,
		fmt.Sprintf("Pathway not actually complete: %d/%d %s completed", r.Progress.Completed, r.Progress.Total, unit)).
		WithContext(map[string]any{"type": string(KindPathway), "slug": slug})
}

// ValidateExplicitCompletion checks an explicit completion event against the
// computed state. pathway scopes a course that lives inside a pathway.
func (m *Metadata) ValidateExplicitCompletion(kind Kind, slug, pathway string, s *progress.State) error {
	switch kind {
	case KindCourse:
		var c *progress.CourseProgress
		if pathway != "" {
			if p := s.Pathways[pathway]; p != nil {
				c = p.Courses[slug]
			}
		} else {
			c = s.Courses[slug]
		}
		return m.ValidateCourseCompletion(slug, c)
	case KindPathway:
		return m.ValidatePathwayCompletion(slug, s.Pathways[slug])
	}
	return validation.NewError(validation.InvalidEventType, fmt.Sprintf("unknown completion type %q", kind))
}

// ValidateCompletionTimestamp reports whether explicit is within
// TimestampTolerance of inferred. Unparseable timestamps never match.
func ValidateCompletionTimestamp(explicit, inferred string) bool {
	e, err := time.Parse(time.RFC3339, explicit)
	if err != nil {
		return false
	}
	i, err := time.Parse(time.RFC3339, inferred)
	if err != nil {
		return false
	}
	d := e.Sub(i)
	if d < 0 {
		d = -d
	}
	return d <= TimestampTolerance
}
