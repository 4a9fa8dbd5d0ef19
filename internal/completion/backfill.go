package completion

import (
	"sort"

	"hedgehog-learn/internal/progress"
)

// Change records one completion flag that Backfill flipped.
type Change struct {
	Type     Kind   `json:"type"`
	Slug     string `json:"slug"`
	Before   bool   `json:"before"`
	After    bool   `json:"after"`
	Progress Counts `json:"progress"`
}

// Backfill recomputes completion flags in s from the metadata. Courses go
// first (nested ones reported as "pathway/course") so pathways see fresh
// course flags. Newly completed entries get the latest child completion time.
func (m *Metadata) Backfill(s *progress.State) []Change {
	var changes []Change

	for _, cs := range sortedKeys(s.Courses) {
		if ch, ok := m.backfillCourse(cs, cs, s.Courses[cs]); ok {
			changes = append(changes, ch)
		}
	}
	for _, ps := range sortedKeys(s.Pathways) {
		p := s.Pathways[ps]
		for _, cs := range sortedKeys(p.Courses) {
			if ch, ok := m.backfillCourse(cs, ps+"/"+cs, p.Courses[cs]); ok {
				changes = append(changes, ch)
			}
		}
	}
	for _, ps := range sortedKeys(s.Pathways) {
		p := s.Pathways[ps]
		_, flat := m.pathwayModules[ps]
		if len(p.Courses) == 0 && !flat {
			continue
		}
		r := m.PathwayCompletion(ps, p)
		if r.Completed == p.Completed {
			continue
		}
		changes = append(changes, Change{Type: KindPathway, Slug: ps, Before: p.Completed, After: r.Completed, Progress: r.Progress})
		p.Completed = r.Completed
		if r.Completed {
			ts := progress.LatestCourseCompletion(p.Courses)
			if flat {
				ts = progress.LatestModuleCompletion(p.Modules)
			}
			if ts != "" {
				p.CompletedAt = ts
			}
		}
	}
	return changes
}

func (m *Metadata) backfillCourse(slug, label string, c *progress.CourseProgress) (Change, bool) {
	r := m.CourseCompletion(slug, c.Modules)
	if r.Completed == c.Completed {
		return Change{}, false
	}
	ch := Change{Type: KindCourse, Slug: label, Before: c.Completed, After: r.Completed, Progress: r.Progress}
	c.Completed = r.Completed
	if r.Completed {
		if ts := progress.LatestModuleCompletion(c.Modules); ts != "" {
			c.CompletedAt = ts
		}
	}
	return ch, true
}

// Recompute refreshes started flags and completion after an event. Completion
// comes only from the metadata, never from the tracked subset of modules.
func (m *Metadata) Recompute(s *progress.State) []Change {
	for _, c := range s.Courses {
		progress.UpdateCourseStarted(c)
	}
	for _, p := range s.Pathways {
		for _, c := range p.Courses {
			progress.UpdateCourseStarted(c)
		}
		progress.UpdatePathwayStarted(p)
	}
	return m.Backfill(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
