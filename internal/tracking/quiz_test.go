package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/validation"
)

type fakeRows struct {
	rows  []hubspot.Row
	err   error
	calls int
}

func (f *fakeRows) ListRows(context.Context, string) ([]hubspot.Row, error) {
	f.calls++
	return f.rows, f.err
}

func quizRows() *fakeRows {
	return &fakeRows{rows: []hubspot.Row{
		{Path: "intro", Values: map[string]any{QuizSchemaColumn: `{"questions":[{"id":"q1","answer":"b"},{"id":"q2","answer":2},{"id":"q3","answer":["x","y"]}]}`}},
		{Path: "broken", Values: map[string]any{QuizSchemaColumn: `{not json`}},
		{Path: "plain", Values: map[string]any{"title": "Plain"}},
	}}
}

func TestGrade(t *testing.T) {
	rows := quizRows()
	g := NewGrader(rows, 70, nil)
	g.TableID = "123"
	ctx := context.Background()

	tests := []struct {
		name    string
		answers []validation.QuizAnswer
		score   int
		pass    bool
	}{
		{"all correct", []validation.QuizAnswer{{ID: "q1", Value: "b"}, {ID: "q2", Value: 2.0}, {ID: "q3", Value: []any{"x", "y"}}}, 100, true},
		{"two of three", []validation.QuizAnswer{{ID: "q1", Value: "b"}, {ID: "q2", Value: 2}}, 66, false},
		{"wrong", []validation.QuizAnswer{{ID: "q1", Value: "a"}, {ID: "zz", Value: "b"}}, 0, false},
		{"repeated correct answer", []validation.QuizAnswer{{ID: "q1", Value: "b"}, {ID: "q1", Value: "b"}, {ID: "q1", Value: "b"}}, 33, false},
		{"first answer wins", []validation.QuizAnswer{{ID: "q1", Value: "a"}, {ID: "q1", Value: "b"}, {ID: "q2", Value: 2}}, 33, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := g.Grade(ctx, &validation.QuizGrade{ModuleSlug: "intro", Answers: tc.answers})
			assert.Equal(t, tc.score, res.Score)
			assert.Equal(t, tc.pass, res.Pass)
			assert.Equal(t, 3, res.Total)
		})
	}
	assert.Equal(t, 1, rows.calls)

	for _, slug := range []string{"broken", "plain", "missing"} {
		res := g.Grade(ctx, &validation.QuizGrade{ModuleSlug: slug, Answers: []validation.QuizAnswer{{ID: "q1", Value: "a"}}})
		assert.Equal(t, 100, res.Score, slug)
		assert.True(t, res.Pass, slug)
	}
}

func TestGradeCacheExpiry(t *testing.T) {
	rows := quizRows()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGrader(rows, 0, nil)
	g.TableID = "123"
	g.now = func() time.Time { return now }
	q := &validation.QuizGrade{ModuleSlug: "intro", Answers: []validation.QuizAnswer{{ID: "q1", Value: "b"}}}

	g.Grade(context.Background(), q)
	g.Grade(context.Background(), q)
	assert.Equal(t, 1, rows.calls)

	now = now.Add(AnswerKeyTTL + time.Second)
	rows.err = errors.New("hubdb unavailable")
	res := g.Grade(context.Background(), q)
	assert.Equal(t, 2, rows.calls)
	// stale keys are kept when the refresh fails
	assert.Equal(t, 33, res.Score)
}

func TestGradeWithoutTable(t *testing.T) {
	res := NewGrader(nil, 70, nil).Grade(context.Background(), &validation.QuizGrade{
		ModuleSlug: "intro",
		Answers:    []validation.QuizAnswer{{ID: "q1", Value: "a"}, {ID: "q2", Value: "b"}},
	})
	assert.Equal(t, GradeResult{ModuleSlug: "intro", Score: 100, Pass: true, Correct: 2, Total: 2}, res)
}
