package tracking

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/validation"
)

// QuizSchemaColumn holds a module's answer key as JSON:
// {"questions":[{"id":"q1","answer":"b"}]}.
const QuizSchemaColumn = "quiz_schema_json"

// AnswerKeyTTL bounds how long answer keys are cached.
const AnswerKeyTTL = 5 * time.Minute

// RowLister reads HubDB rows.
type RowLister interface {
	ListRows(ctx context.Context, tableID string) ([]hubspot.Row, error)
}

type GradeResult struct {
	ModuleSlug string `json:"module_slug"`
	Score      int    `json:"score"`
	Pass       bool   `json:"pass"`
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
}

type quizSchema struct {
	Questions []struct {
		ID     string `json:"id"`
		Answer any    `json:"answer"`
	} `json:"questions"`
}

// Grader scores quiz submissions against answer keys kept in the modules table.
type Grader struct {
	Rows         RowLister
	TableID      string
	PassingScore int
	Log          *zap.Logger

	now     func() time.Time
	mu      sync.Mutex
	keys    map[string]map[string]any
	expires time.Time
}

func NewGrader(rows RowLister, passing int, log *zap.Logger) *Grader {
	if log == nil {
		log = zap.NewNop()
	}
	if passing <= 0 {
		passing = 70
	}
	return &Grader{Rows: rows, PassingScore: passing, Log: log, now: time.Now}
}

// Grade scores q. Modules without an answer key grade as 100 and pass.
func (g *Grader) Grade(ctx context.Context, q *validation.QuizGrade) GradeResult {
	out := GradeResult{ModuleSlug: q.ModuleSlug, Total: len(q.Answers)}
	key := g.answerKey(ctx, q.ModuleSlug)
	if len(key) == 0 {
		out.Score, out.Pass, out.Correct = 100, true, out.Total
		return out
	}

	out.Total = len(key)
	// Only the first answer to each question counts.
	seen := make(map[string]bool, len(q.Answers))
	for _, a := range q.Answers {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		want, ok := key[a.ID]
		if ok && sameAnswer(want, a.Value) {
			out.Correct++
		}
	}
	out.Score = out.Correct * 100 / out.Total
	out.Pass = out.Score >= g.PassingScore
	return out
}

// sameAnswer compares through a JSON round trip so 1 and 1.0 match.
func sameAnswer(want, got any) bool {
	norm := func(v any) any {
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out any
		if json.Unmarshal(b, &out) != nil {
			return v
		}
		return out
	}
	return reflect.DeepEqual(norm(want), norm(got))
}

func (g *Grader) answerKey(ctx context.Context, module string) map[string]any {
	if g == nil || g.Rows == nil || g.TableID == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.keys == nil || g.now().After(g.expires) {
		rows, err := g.Rows.ListRows(ctx, g.TableID)
		if err != nil {
			g.Log.Warn("failed to load quiz answer keys", zap.Error(err))
			return g.keys[module]
		}
		g.keys = loadKeys(rows, g.Log)
		g.expires = g.now().Add(AnswerKeyTTL)
	}
	return g.keys[module]
}

func loadKeys(rows []hubspot.Row, log *zap.Logger) map[string]map[string]any {
	keys := map[string]map[string]any{}
	for _, r := range rows {
		raw := r.StringValue(QuizSchemaColumn)
		if raw == "" {
			continue
		}
		var qs quizSchema
		if err := json.Unmarshal([]byte(raw), &qs); err != nil {
			log.Warn("invalid quiz schema", zap.String("module", r.Path), zap.Error(err))
			continue
		}
		key := map[string]any{}
		for _, q := range qs.Questions {
			if q.ID != "" {
				key[q.ID] = q.Answer
			}
		}
		if len(key) > 0 {
			keys[r.Path] = key
		}
	}
	return keys
}
