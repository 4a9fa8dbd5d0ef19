package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgehog-learn/internal/validation"
)

type fakeDefs struct {
	pathways map[string][]string
	courses  map[string][]string
}

func (d fakeDefs) PathwayCourses(slug string) ([]string, bool) {
	c, ok := d.pathways[slug]
	return c, ok
}

func (d fakeDefs) CourseModules(slug string) ([]string, bool) {
	m, ok := d.courses[slug]
	return m, ok
}

var defs = fakeDefs{
	pathways: map[string][]string{
		"network-like-hyperscaler": {"foundations", "operations"},
		"legacy-modules":           {},
	},
	courses: map[string][]string{
		"foundations": {"intro", "fabric"},
		"operations":  {"day2", "intro"},
	},
}

const legacyState = `{
  "network-like-hyperscaler": {
    "enrolled": true,
    "enrolled_at": "2025-01-01T10:00:00.000Z",
    "enrollment_source": "pathway_page",
    "modules": {
      "intro":  {"started": true, "started_at": "2025-01-02T10:00:00.000Z", "completed": true, "completed_at": "2025-01-02T11:00:00.000Z"},
      "fabric": {"started": true, "started_at": "2025-01-03T10:00:00.000Z"}
    }
  },
  "legacy-modules": {
    "modules": {"m1": {"started": true, "started_at": "2025-02-01T00:00:00.000Z"}}
  },
  "courses": {
    "standalone": {"enrolled": true, "enrolled_at": "2025-03-01T00:00:00.000Z", "modules": {"s1": {"completed": true}}}
  }
}`

func TestDecodeLegacyLayout(t *testing.T) {
	s, err := Decode(legacyState)
	require.NoError(t, err)
	require.Len(t, s.Pathways, 2)
	p := s.Pathways["network-like-hyperscaler"]
	assert.True(t, p.Enrolled)
	assert.Equal(t, "pathway_page", p.EnrollmentSource)
	assert.True(t, p.Modules["intro"].Completed)
	assert.True(t, s.Courses["standalone"].Modules["s1"].Completed)
}

func TestDecodeCanonicalRoundTrip(t *testing.T) {
	s, err := Decode(legacyState)
	require.NoError(t, err)
	raw, err := s.Encode()
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &top))
	assert.Contains(t, top, "pathways")
	assert.NotContains(t, top, "network-like-hyperscaler")

	again, err := Decode(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(s, again); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEmpty(t *testing.T) {
	for _, raw := range []string{"", "  ", "{}", "null"} {
		s, err := Decode(raw)
		require.NoError(t, err)
		assert.Empty(t, s.Pathways)
	}
	_, err := Decode(`{"p": 5}`)
	assert.Error(t, err)
	_, err = Decode(`not json`)
	assert.Error(t, err)
}

func TestDecodeDropsNestedNulls(t *testing.T) {
	for _, raw := range []string{
		`{"courses":{"c1":{"modules":{"m1":null,"m2":{"completed":true}}}}}`,
		`{"pathways":{"p1":{"courses":{"c1":null,"c2":{"modules":{"m1":null}}},"modules":{"m1":null}}}}`,
		`{"legacy-path":{"modules":{"m1":null}},"modules":{"m1":null},"courses":{"c1":null}}`,
	} {
		s, err := Decode(raw)
		require.NoError(t, err, raw)

		for _, m := range s.Modules {
			require.NotNil(t, m, raw)
		}
		for _, c := range s.Courses {
			require.NotNil(t, c, raw)
			for _, m := range c.Modules {
				require.NotNil(t, m, raw)
			}
		}
		for _, p := range s.Pathways {
			require.NotNil(t, p, raw)
			for _, m := range p.Modules {
				require.NotNil(t, m, raw)
			}
			for _, c := range p.Courses {
				require.NotNil(t, c, raw)
				for _, m := range c.Modules {
					require.NotNil(t, m, raw)
				}
			}
		}

		assert.NotPanics(t, func() {
			cp := s.Clone()
			for _, c := range cp.Courses {
				UpdateCourseAggregates(c)
			}
			for _, p := range cp.Pathways {
				UpdatePathwayAggregates(p)
			}
			ExtractModuleProgress(cp)
		}, raw)
	}

	s, err := Decode(`{"courses":{"c1":{"modules":{"m1":null,"m2":{"completed":true}}}}}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, sortedKeys(s.Courses["c1"].Modules))
}

func TestApplyEvent(t *testing.T) {
	s := New()
	t0 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	ok, err := ApplyEvent(s, Event{Name: validation.EventModuleStarted, ModuleSlug: "intro", CourseSlug: "foundations", At: t0})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ApplyEvent(s, Event{Name: validation.EventModuleStarted, ModuleSlug: "intro", CourseSlug: "foundations", At: t1})
	require.NoError(t, err)
	assert.True(t, ok)
	m := s.Courses["foundations"].Modules["intro"]
	assert.Equal(t, "2025-05-01T09:00:00.000Z", m.StartedAt, "first start is kept")

	_, err = ApplyEvent(s, Event{Name: validation.EventModuleCompleted, ModuleSlug: "fabric", PathwaySlug: "p", CourseSlug: "foundations", At: t1})
	require.NoError(t, err)
	nested := s.Pathways["p"].Courses["foundations"].Modules["fabric"]
	assert.True(t, nested.Started)
	assert.True(t, nested.Completed)
	assert.Equal(t, nested.StartedAt, nested.CompletedAt)

	_, err = ApplyEvent(s, Event{Name: validation.EventModuleStarted, ModuleSlug: "loose", At: t0})
	require.NoError(t, err)
	assert.True(t, s.Modules["loose"].Started)

	_, err = ApplyEvent(s, Event{Name: validation.EventModuleStarted, ModuleSlug: "direct", PathwaySlug: "flat", At: t0})
	require.NoError(t, err)
	assert.True(t, s.Pathways["flat"].Modules["direct"].Started)

	_, err = ApplyEvent(s, Event{Name: validation.EventCourseEnrolled, CourseSlug: "ops", Source: "catalog", At: t0})
	require.NoError(t, err)
	_, err = ApplyEvent(s, Event{Name: validation.EventCourseEnrolled, CourseSlug: "ops", Source: "other", At: t1})
	require.NoError(t, err)
	assert.Equal(t, "catalog", s.Courses["ops"].EnrollmentSource)

	_, err = ApplyEvent(s, Event{Name: validation.EventPathwayEnrolled, PathwaySlug: "p", At: t0})
	require.NoError(t, err)
	assert.True(t, s.Pathways["p"].Enrolled)

	_, err = ApplyEvent(s, Event{Name: validation.EventPathwayCompleted, PathwaySlug: "p", At: t1})
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01T10:00:00.000Z", s.Pathways["p"].CompletedAt)

	ok, err = ApplyEvent(s, Event{Name: validation.EventPageViewed, At: t0})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ApplyEvent(s, Event{Name: "learning_nothing"})
	assert.Error(t, err)
}

func TestEventFrom(t *testing.T) {
	ev := &validation.TrackEvent{
		EventName:        validation.EventModuleCompleted,
		CourseSlug:       "c",
		EnrollmentSource: "course_page",
		Payload:          map[string]any{"module_slug": "m", "pathway_slug": "p", "ts": "2025-01-01T00:00:00+02:00"},
	}
	got := EventFrom(ev, time.Now())
	assert.Equal(t, Event{
		Name: validation.EventModuleCompleted, ModuleSlug: "m", CourseSlug: "c", PathwaySlug: "p",
		Source: "course_page", At: time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC),
	}, got)
}

func TestUpdateCourseAggregates(t *testing.T) {
	c := &CourseProgress{Modules: map[string]*ModuleProgress{
		"a": {Started: true, StartedAt: "2025-01-02T00:00:00Z", Completed: true, CompletedAt: "2025-01-05T00:00:00Z"},
		"b": {Started: true, StartedAt: "2025-01-01T00:00:00Z", Completed: true, CompletedAt: "2025-01-03T00:00:00Z"},
	}}
	UpdateCourseAggregates(c)
	assert.True(t, c.Started)
	assert.Equal(t, "2025-01-01T00:00:00Z", c.StartedAt)
	assert.True(t, c.Completed)
	assert.Equal(t, "2025-01-05T00:00:00Z", c.CompletedAt)

	partial := &CourseProgress{Modules: map[string]*ModuleProgress{"a": {Started: true}, "b": {}}}
	UpdateCourseAggregates(partial)
	assert.True(t, partial.Started)
	assert.False(t, partial.Completed)

	empty := &CourseProgress{}
	UpdateCourseAggregates(empty)
	assert.False(t, empty.Started)

	mixed := &CourseProgress{Modules: map[string]*ModuleProgress{
		"a": {Started: true, StartedAt: "2025-01-01T00:00:00.500Z", Completed: true, CompletedAt: "2025-01-05T00:00:00Z"},
		"b": {Started: true, StartedAt: "2025-01-01T00:00:00Z", Completed: true, CompletedAt: "2025-01-05T00:00:00.250Z"},
	}}
	UpdateCourseAggregates(mixed)
	assert.Equal(t, "2025-01-01T00:00:00Z", mixed.StartedAt)
	assert.Equal(t, "2025-01-05T00:00:00.250Z", mixed.CompletedAt)

	preset := &CourseProgress{Started: true, StartedAt: "keep", Modules: map[string]*ModuleProgress{"a": {Started: true, StartedAt: "2020-01-01T00:00:00Z"}}}
	UpdateCourseAggregates(preset)
	assert.Equal(t, "keep", preset.StartedAt)
}

func TestMigrateToHierarchical(t *testing.T) {
	before, err := Decode(legacyState)
	require.NoError(t, err)

	after := MigrateToHierarchical(before, defs)
	assert.NotNil(t, before.Pathways["network-like-hyperscaler"].Modules["intro"], "input is untouched")

	p := after.Pathways["network-like-hyperscaler"]
	assert.Nil(t, p.Modules)
	assert.True(t, p.Enrolled)
	require.Len(t, p.Courses, 2)
	f := p.Courses["foundations"]
	assert.Len(t, f.Modules, 2)
	assert.True(t, f.Started)
	assert.Equal(t, "2025-01-02T10:00:00.000Z", f.StartedAt)
	assert.False(t, f.Completed)

	ops := p.Courses["operations"]
	assert.Len(t, ops.Modules, 1, "reused module copied into every course that lists it")
	assert.True(t, ops.Completed)
	assert.Equal(t, "2025-01-02T11:00:00.000Z", ops.CompletedAt)

	assert.True(t, p.Started)
	assert.False(t, p.Completed)

	assert.Equal(t, before.Pathways["legacy-modules"], after.Pathways["legacy-modules"])
	assert.Equal(t, before.Courses, after.Courses)

	check := ValidateMigration("42", before, after)
	assert.True(t, check.Success, check.Errors)
	assert.Equal(t, 4, check.BeforeModules)
	assert.Equal(t, 5, check.AfterModules)
	assert.Equal(t, []string{"course:standalone", "pathway:network-like-hyperscaler"}, ExtractEnrollments(after))
}

func TestMigrateSkipsUnknownCourses(t *testing.T) {
	before, err := Decode(`{"p": {"modules": {"x": {"started": true, "started_at": "2025-01-01T00:00:00Z"}}}}`)
	require.NoError(t, err)
	d := fakeDefs{pathways: map[string][]string{"p": {"missing"}}, courses: map[string][]string{}}
	after := MigrateToHierarchical(before, d)
	assert.Empty(t, after.Pathways["p"].Courses)

	check := ValidateMigration("1", before, after)
	assert.False(t, check.Success)
	assert.Contains(t, check.Errors, "Module progress lost: p.x")
	assert.Contains(t, check.Errors, "Timestamp lost: 2025-01-01T00:00:00Z")
}

func TestValidateMigrationDetectsChanges(t *testing.T) {
	before := New()
	before.Pathway("p").Modules = map[string]*ModuleProgress{"m": {Started: true}}
	before.Course("c").Enrolled = true

	after := New()
	after.Pathway("p").Course("a").Modules = map[string]*ModuleProgress{"m": {Started: true}}
	after.Pathway("p").Course("b").Modules = map[string]*ModuleProgress{"m": {Started: true, Completed: true}}

	check := ValidateMigration("7", before, after)
	assert.False(t, check.Success)
	assert.Contains(t, check.Errors, "Module progress inconsistent for reused module: m (p.a.m, p.b.m)")
	assert.Contains(t, check.Errors, "Enrollment lost: course:c")
}

func TestRollback(t *testing.T) {
	before, err := Decode(legacyState)
	require.NoError(t, err)
	after := MigrateToHierarchical(before, defs)

	rolled := Rollback(after)
	p := rolled.Pathways["network-like-hyperscaler"]
	assert.Nil(t, p.Courses)
	assert.False(t, p.Started)
	assert.Equal(t, before.Pathways["network-like-hyperscaler"].Modules, p.Modules)
	assert.True(t, ValidateMigration("r", before, rolled).Success)
	assert.NotNil(t, after.Pathways["network-like-hyperscaler"].Courses, "input is untouched")
}

func TestExtractTimestamps(t *testing.T) {
	s, err := Decode(legacyState)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2025-01-01T10:00:00.000Z",
		"2025-01-02T10:00:00.000Z",
		"2025-01-02T11:00:00.000Z",
		"2025-01-03T10:00:00.000Z",
		"2025-02-01T00:00:00.000Z",
		"2025-03-01T00:00:00.000Z",
	}, ExtractTimestamps(s))
}
