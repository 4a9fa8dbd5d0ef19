package progress

import (
	"slices"
	"time"
)

// UpdateCourseAggregates derives the course started/completed flags from its
// tracked modules. Flags that are already set are left alone.
func UpdateCourseAggregates(c *CourseProgress) {
	if len(c.Modules) == 0 {
		return
	}
	UpdateCourseStarted(c)
	var completions []string
	for _, m := range c.Modules {
		if !m.Completed {
			return
		}
		if m.CompletedAt != "" {
			completions = append(completions, m.CompletedAt)
		}
	}
	if !c.Completed {
		c.Completed = true
		c.CompletedAt = latest(completions)
	}
}

// UpdateCourseStarted sets started (earliest module start) when any module
// has started.
func UpdateCourseStarted(c *CourseProgress) {
	if c.Started {
		return
	}
	var starts []string
	for _, m := range c.Modules {
		if m.Started {
			c.Started = true
		}
		if m.StartedAt != "" {
			starts = append(starts, m.StartedAt)
		}
	}
	if c.Started {
		c.StartedAt = earliest(starts)
	}
}

// UpdatePathwayAggregates derives pathway flags from its courses. Pathways
// without courses are not touched.
func UpdatePathwayAggregates(p *PathwayProgress) {
	if len(p.Courses) == 0 {
		return
	}
	UpdatePathwayStarted(p)
	var completions []string
	for _, c := range p.Courses {
		if !c.Completed {
			return
		}
		if c.CompletedAt != "" {
			completions = append(completions, c.CompletedAt)
		}
	}
	if !p.Completed {
		p.Completed = true
		p.CompletedAt = latest(completions)
	}
}

// UpdatePathwayStarted sets started from the pathway's courses, or from its
// direct modules when it has no courses.
func UpdatePathwayStarted(p *PathwayProgress) {
	if p.Started {
		return
	}
	var starts []string
	for _, c := range p.Courses {
		if c.Started {
			p.Started = true
		}
		if c.StartedAt != "" {
			starts = append(starts, c.StartedAt)
		}
	}
	for _, m := range p.Modules {
		if m.Started {
			p.Started = true
		}
		if m.StartedAt != "" {
			starts = append(starts, m.StartedAt)
		}
	}
	if p.Started {
		p.StartedAt = earliest(starts)
	}
}

func earliest(ts []string) string { return pick(ts, false) }

func latest(ts []string) string { return pick(ts, true) }

// pick returns the earliest or latest timestamp by parsed instant, so mixed
// precision orders correctly. Unparseable values lose to any parseable one;
// when none parse the strings are compared lexically.
func pick(ts []string, newest bool) string {
	var (
		best   string
		bestAt time.Time
		found  bool
	)
	for _, s := range ts {
		at, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			continue
		}
		if !found || (newest && at.After(bestAt)) || (!newest && at.Before(bestAt)) {
			best, bestAt, found = s, at, true
		}
	}
	switch {
	case found || len(ts) == 0:
		return best
	case newest:
		return slices.Max(ts)
	default:
		return slices.Min(ts)
	}
}

// LatestModuleCompletion is the newest completed_at among completed modules.
func LatestModuleCompletion(mods map[string]*ModuleProgress) string {
	var ts []string
	for _, m := range mods {
		if m.Completed && m.CompletedAt != "" {
			ts = append(ts, m.CompletedAt)
		}
	}
	return latest(ts)
}

// LatestCourseCompletion is the newest completed_at among completed courses.
func LatestCourseCompletion(courses map[string]*CourseProgress) string {
	var ts []string
	for _, c := range courses {
		if c.Completed && c.CompletedAt != "" {
			ts = append(ts, c.CompletedAt)
		}
	}
	return latest(ts)
}
