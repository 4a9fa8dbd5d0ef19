// Package progress models the per-contact learning state kept in the
// hhl_progress_state CRM property.
package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ModuleProgress is the state of one module. Timestamps are kept as the
// ISO-8601 strings the browser sent.
type ModuleProgress struct {
	Started     bool   `json:"started,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	Completed   bool   `json:"completed,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// Enrollment fields shared by courses and pathways.
type Enrollment struct {
	Enrolled         bool   `json:"enrolled,omitempty"`
	EnrolledAt       string `json:"enrolled_at,omitempty"`
	EnrollmentSource string `json:"enrollment_source,omitempty"`
}

type CourseProgress struct {
	Enrollment
	Started     bool                       `json:"started,omitempty"`
	StartedAt   string                     `json:"started_at,omitempty"`
	Completed   bool                       `json:"completed,omitempty"`
	CompletedAt string                     `json:"completed_at,omitempty"`
	Modules     map[string]*ModuleProgress `json:"modules,omitempty"`
}

// PathwayProgress holds either Courses (hierarchical pathways) or Modules
// (pathways that list modules directly).
type PathwayProgress struct {
	Enrollment
	Started     bool                       `json:"started,omitempty"`
	StartedAt   string                     `json:"started_at,omitempty"`
	Completed   bool                       `json:"completed,omitempty"`
	CompletedAt string                     `json:"completed_at,omitempty"`
	Courses     map[string]*CourseProgress `json:"courses,omitempty"`
	Modules     map[string]*ModuleProgress `json:"modules,omitempty"`
}

// State is the canonical {modules, courses, pathways} document.
type State struct {
	Modules  map[string]*ModuleProgress  `json:"modules,omitempty"`
	Courses  map[string]*CourseProgress  `json:"courses,omitempty"`
	Pathways map[string]*PathwayProgress `json:"pathways,omitempty"`
}

func New() *State {
	return &State{
		Modules:  map[string]*ModuleProgress{},
		Courses:  map[string]*CourseProgress{},
		Pathways: map[string]*PathwayProgress{},
	}
}

// IsEmptyRaw reports whether a stored property value carries no progress.
func IsEmptyRaw(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw == "" || raw == "{}" || raw == "null"
}

// Decode parses a stored property value. Besides the canonical layout it
// accepts the legacy one, where every top-level key other than "courses" is
// a pathway slug.
func Decode(raw string) (*State, error) {
	s := New()
	if IsEmptyRaw(raw) {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("progress state: %w", err)
	}
	*s = *New()
	for key, val := range top {
		if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
			continue
		}
		var err error
		switch key {
		case "modules":
			err = json.Unmarshal(val, &s.Modules)
		case "courses":
			err = json.Unmarshal(val, &s.Courses)
		case "pathways":
			var ps map[string]*PathwayProgress
			if err = json.Unmarshal(val, &ps); err == nil {
				for slug, p := range ps {
					s.Pathways[slug] = p
				}
			}
		default:
			var p PathwayProgress
			if err = json.Unmarshal(val, &p); err == nil {
				s.Pathways[key] = &p
			}
		}
		if err != nil {
			return fmt.Errorf("progress state %q: %w", key, err)
		}
	}
	s.dropNil()
	return nil
}

// dropNil removes null entries at every level of the stored document.
func (s *State) dropNil() {
	dropNilValues(s.Modules)
	for _, c := range dropNilValues(s.Courses) {
		dropNilValues(c.Modules)
	}
	for _, p := range dropNilValues(s.Pathways) {
		dropNilValues(p.Modules)
		for _, c := range dropNilValues(p.Courses) {
			dropNilValues(c.Modules)
		}
	}
}

// dropNilValues deletes nil entries from m and returns it.
func dropNilValues[V any](m map[string]*V) map[string]*V {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
	return m
}

// Encode renders the canonical layout.
func (s *State) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := New()
	for k, m := range s.Modules {
		if m != nil {
			cp := *m
			out.Modules[k] = &cp
		}
	}
	for k, c := range s.Courses {
		if c != nil {
			out.Courses[k] = c.clone()
		}
	}
	for k, p := range s.Pathways {
		if p == nil {
			continue
		}
		cp := *p
		cp.Courses = nil
		if p.Courses != nil {
			cp.Courses = make(map[string]*CourseProgress, len(p.Courses))
			for ck, c := range p.Courses {
				if c != nil {
					cp.Courses[ck] = c.clone()
				}
			}
		}
		cp.Modules = cloneModules(p.Modules)
		out.Pathways[k] = &cp
	}
	return out
}

func (c *CourseProgress) clone() *CourseProgress {
	cp := *c
	cp.Modules = cloneModules(c.Modules)
	return &cp
}

func cloneModules(in map[string]*ModuleProgress) map[string]*ModuleProgress {
	if in == nil {
		return nil
	}
	out := make(map[string]*ModuleProgress, len(in))
	for k, m := range in {
		if m != nil {
			cp := *m
			out[k] = &cp
		}
	}
	return out
}

// Course returns the standalone course entry, creating it when missing.
func (s *State) Course(slug string) *CourseProgress {
	c, ok := s.Courses[slug]
	if !ok {
		c = &CourseProgress{}
		s.Courses[slug] = c
	}
	return c
}

// Pathway returns the pathway entry, creating it when missing.
func (s *State) Pathway(slug string) *PathwayProgress {
	p, ok := s.Pathways[slug]
	if !ok {
		p = &PathwayProgress{}
		s.Pathways[slug] = p
	}
	return p
}

// Course returns the nested course entry, creating it when missing.
func (p *PathwayProgress) Course(slug string) *CourseProgress {
	if p.Courses == nil {
		p.Courses = map[string]*CourseProgress{}
	}
	c, ok := p.Courses[slug]
	if !ok {
		c = &CourseProgress{}
		p.Courses[slug] = c
	}
	return c
}

func module(m map[string]*ModuleProgress, slug string) (map[string]*ModuleProgress, *ModuleProgress) {
	if m == nil {
		m = map[string]*ModuleProgress{}
	}
	mp, ok := m[slug]
	if !ok {
		mp = &ModuleProgress{}
		m[slug] = mp
	}
	return m, mp
}
