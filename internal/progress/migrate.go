package progress

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Definitions exposes the content structure needed to nest module progress
// under courses. ok is false when the slug has no content definition.
type Definitions interface {
	PathwayCourses(slug string) (courses []string, ok bool)
	CourseModules(slug string) (modules []string, ok bool)
}

// MigrateToHierarchical rewrites pathways whose content lists courses so that
// module progress sits under pathway.courses[course].modules. Pathways without
// a definition or without courses are kept as they are. Standalone courses
// and top-level modules are copied unchanged. The input is not modified.
func MigrateToHierarchical(s *State, defs Definitions) *State {
	out := s.Clone()
	for slug, p := range out.Pathways {
		courses, ok := defs.PathwayCourses(slug)
		if !ok || len(courses) == 0 {
			continue
		}
		out.Pathways[slug] = nestPathway(p, courses, defs)
	}
	return out
}

func nestPathway(flat *PathwayProgress, courses []string, defs Definitions) *PathwayProgress {
	np := &PathwayProgress{
		Enrollment: flat.Enrollment,
		Courses:    map[string]*CourseProgress{},
	}
	for _, cs := range courses {
		modules, ok := defs.CourseModules(cs)
		if !ok {
			continue
		}
		cp := &CourseProgress{Modules: map[string]*ModuleProgress{}}
		for _, ms := range modules {
			if m, ok := flat.Modules[ms]; ok {
				copied := *m
				cp.Modules[ms] = &copied
			}
		}
		UpdateCourseAggregates(cp)
		np.Courses[cs] = cp
	}
	UpdatePathwayAggregates(np)
	return np
}

// Rollback flattens hierarchical pathways back into pathway.modules. When a
// module appears in several courses the first course in slug order wins.
func Rollback(s *State) *State {
	out := s.Clone()
	for _, p := range out.Pathways {
		if len(p.Courses) == 0 {
			continue
		}
		flat := map[string]*ModuleProgress{}
		for _, cs := range sortedKeys(p.Courses) {
			for ms, m := range p.Courses[cs].Modules {
				if _, seen := flat[ms]; !seen {
					flat[ms] = m
				}
			}
		}
		for ms, m := range p.Modules {
			if _, seen := flat[ms]; !seen {
				flat[ms] = m
			}
		}
		p.Courses = nil
		p.Modules = flat
		p.Started, p.StartedAt, p.Completed, p.CompletedAt = false, "", false, ""
	}
	return out
}

// ExtractModuleProgress flattens every module entry under a dotted key:
// "modules.<m>", "courses.<c>.<m>", "<p>.<m>" or "<p>.<c>.<m>".
func ExtractModuleProgress(s *State) map[string]ModuleProgress {
	out := map[string]ModuleProgress{}
	for ms, m := range s.Modules {
		out["modules."+ms] = *m
	}
	for cs, c := range s.Courses {
		for ms, m := range c.Modules {
			out["courses."+cs+"."+ms] = *m
		}
	}
	for ps, p := range s.Pathways {
		if p.Courses != nil {
			for cs, c := range p.Courses {
				for ms, m := range c.Modules {
					out[ps+"."+cs+"."+ms] = *m
				}
			}
			continue
		}
		for ms, m := range p.Modules {
			out[ps+"."+ms] = *m
		}
	}
	return out
}

// ExtractEnrollments lists "course:<slug>" and "pathway:<slug>" entries.
func ExtractEnrollments(s *State) []string {
	var out []string
	for cs, c := range s.Courses {
		if c.Enrolled {
			out = append(out, "course:"+cs)
		}
	}
	for ps, p := range s.Pathways {
		if p.Enrolled {
			out = append(out, "pathway:"+ps)
		}
		for cs, c := range p.Courses {
			if c.Enrolled {
				out = append(out, "course:"+cs)
			}
		}
	}
	sort.Strings(out)
	return out
}

var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// ExtractTimestamps collects every timestamp-looking value in s.
func ExtractTimestamps(s *State) []string {
	var out []string
	add := func(vals ...string) {
		for _, v := range vals {
			if timestampRe.MatchString(v) {
				out = append(out, v)
			}
		}
	}
	mods := func(ms map[string]*ModuleProgress) {
		for _, m := range ms {
			add(m.StartedAt, m.CompletedAt)
		}
	}
	course := func(c *CourseProgress) {
		add(c.EnrolledAt, c.StartedAt, c.CompletedAt)
		mods(c.Modules)
	}
	mods(s.Modules)
	for _, c := range s.Courses {
		course(c)
	}
	for _, p := range s.Pathways {
		add(p.EnrolledAt, p.StartedAt, p.CompletedAt)
		mods(p.Modules)
		for _, c := range p.Courses {
			course(c)
		}
	}
	sort.Strings(out)
	return out
}

// MigrationCheck is the outcome of ValidateMigration for one contact.
type MigrationCheck struct {
	ContactID         string   `json:"contact_id"`
	Success           bool     `json:"success"`
	Errors            []string `json:"errors"`
	BeforeModules     int      `json:"before_modules"`
	AfterModules      int      `json:"after_modules"`
	BeforeEnrollments int      `json:"before_enrollments"`
	AfterEnrollments  int      `json:"after_enrollments"`
}

// ValidateMigration checks that no module progress, enrollment or timestamp
// present in before is missing from after. A flat key "<p>.<m>" matches any
// "<p>.<c>.<m>"; when a module is reused across courses all copies must agree.
func ValidateMigration(contactID string, before, after *State) MigrationCheck {
	var errs []string
	bm, am := ExtractModuleProgress(before), ExtractModuleProgress(after)

	for _, key := range sortedKeys(bm) {
		want := bm[key]
		match, candidates := matchModuleKey(key, am)
		if len(candidates) > 1 {
			first := am[candidates[0]]
			for _, c := range candidates[1:] {
				if am[c] != first {
					errs = append(errs, fmt.Sprintf("Module progress inconsistent for reused module: %s (%s)",
						lastSegment(key), strings.Join(candidates, ", ")))
					break
				}
			}
		}
		if match == "" {
			errs = append(errs, "Module progress lost: "+key)
			continue
		}
		if am[match] != want {
			errs = append(errs, fmt.Sprintf("Module progress changed: %s -> %s", key, match))
		}
	}

	be, ae := ExtractEnrollments(before), ExtractEnrollments(after)
	have := map[string]bool{}
	for _, e := range ae {
		have[e] = true
	}
	for _, e := range be {
		if !have[e] {
			errs = append(errs, "Enrollment lost: "+e)
		}
	}

	afterTS := map[string]bool{}
	for _, ts := range ExtractTimestamps(after) {
		afterTS[ts] = true
	}
	for _, ts := range ExtractTimestamps(before) {
		if !afterTS[ts] {
			errs = append(errs, "Timestamp lost: "+ts)
		}
	}

	return MigrationCheck{
		ContactID:         contactID,
		Success:           len(errs) == 0,
		Errors:            errs,
		BeforeModules:     len(bm),
		AfterModules:      len(am),
		BeforeEnrollments: len(be),
		AfterEnrollments:  len(ae),
	}
}

func matchModuleKey(key string, after map[string]ModuleProgress) (string, []string) {
	if _, ok := after[key]; ok {
		return key, nil
	}
	mod := lastSegment(key)
	ctx := strings.TrimSuffix(key, "."+mod)
	var candidates []string
	for _, k := range sortedKeys(after) {
		if lastSegment(k) != mod {
			continue
		}
		actx := strings.TrimSuffix(k, "."+mod)
		if actx == ctx || strings.HasPrefix(actx, ctx+".") {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	return candidates[0], candidates
}

func lastSegment(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
