package progress

import (
	"fmt"
	"time"

	"hedgehog-learn/internal/validation"
)

// Event is a tracking event reduced to what the state needs.
type Event struct {
	Name        string
	ModuleSlug  string
	CourseSlug  string
	PathwaySlug string
	Source      string
	At          time.Time
}

// EventFrom converts a validated tracking payload.
func EventFrom(ev *validation.TrackEvent, now time.Time) Event {
	return Event{
		Name:        ev.EventName,
		ModuleSlug:  ev.ModuleSlug(),
		CourseSlug:  ev.Course(),
		PathwaySlug: ev.Pathway(),
		Source:      ev.EnrollmentSource,
		At:          ev.OccurredAt(now).UTC(),
	}
}

// Timestamp formats t the way browsers serialise dates.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ApplyEvent records ev in s. Module events land under the most specific
// scope the event names: pathway course, standalone course, pathway, or the
// top-level module map. It returns false when the event carries no state.
func ApplyEvent(s *State, ev Event) (bool, error) {
	ts := Timestamp(ev.At)
	switch ev.Name {
	case validation.EventModuleStarted, validation.EventModuleCompleted:
		if ev.ModuleSlug == "" {
			return false, nil
		}
		m := s.moduleFor(ev)
		if !m.Started {
			m.Started = true
			m.StartedAt = ts
		}
		if ev.Name == validation.EventModuleCompleted && !m.Completed {
			m.Completed = true
			m.CompletedAt = ts
		}
		return true, nil

	case validation.EventCourseEnrolled:
		c := s.courseFor(ev)
		enroll(&c.Enrollment, ts, ev.Source)
		return true, nil

	case validation.EventPathwayEnrolled:
		enroll(&s.Pathway(ev.PathwaySlug).Enrollment, ts, ev.Source)
		return true, nil

	case validation.EventCourseCompleted:
		c := s.courseFor(ev)
		if !c.Completed {
			c.Completed = true
			c.CompletedAt = ts
		}
		return true, nil

	case validation.EventPathwayCompleted:
		p := s.Pathway(ev.PathwaySlug)
		if !p.Completed {
			p.Completed = true
			p.CompletedAt = ts
		}
		return true, nil

	case validation.EventPageViewed:
		return false, nil
	}
	return false, fmt.Errorf("progress: unknown event %q", ev.Name)
}

func enroll(e *Enrollment, ts, source string) {
	if e.Enrolled {
		return
	}
	e.Enrolled = true
	e.EnrolledAt = ts
	e.EnrollmentSource = source
}

func (s *State) courseFor(ev Event) *CourseProgress {
	if ev.PathwaySlug != "" {
		return s.Pathway(ev.PathwaySlug).Course(ev.CourseSlug)
	}
	return s.Course(ev.CourseSlug)
}

func (s *State) moduleFor(ev Event) *ModuleProgress {
	var m *ModuleProgress
	switch {
	case ev.CourseSlug != "":
		c := s.courseFor(ev)
		c.Modules, m = module(c.Modules, ev.ModuleSlug)
	case ev.PathwaySlug != "":
		p := s.Pathway(ev.PathwaySlug)
		p.Modules, m = module(p.Modules, ev.ModuleSlug)
	default:
		s.Modules, m = module(s.Modules, ev.ModuleSlug)
	}
	return m
}

// CourseModules returns the module map of a course wherever it lives.
func (s *State) CourseModules(pathway, course string) map[string]*ModuleProgress {
	if pathway != "" {
		if p, ok := s.Pathways[pathway]; ok {
			if c, ok := p.Courses[course]; ok {
				return c.Modules
			}
		}
		return nil
	}
	if c, ok := s.Courses[course]; ok {
		return c.Modules
	}
	return nil
}
