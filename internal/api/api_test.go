package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgehog-learn/internal/auth"
	"hedgehog-learn/internal/completion"
	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/store"
	"hedgehog-learn/internal/tracking"
)

type fakeUsers map[string]auth.User

func (f fakeUsers) Verify(_ context.Context, token string) (auth.User, error) {
	u, ok := f[token]
	if !ok {
		return auth.User{}, errors.New("Invalid token format")
	}
	return u, nil
}

type fakeCRM struct {
	contacts map[string]*hubspot.Contact
	events   []hubspot.BehavioralEvent
}

func (f *fakeCRM) SendBehavioralEvent(_ context.Context, ev hubspot.BehavioralEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeCRM) GetContact(_ context.Context, id string, _ ...string) (*hubspot.Contact, error) {
	if c, ok := f.contacts[id]; ok {
		return c, nil
	}
	return nil, hubspot.ErrNotFound
}

func (f *fakeCRM) FindContactByEmail(_ context.Context, email string, _ ...string) (*hubspot.Contact, error) {
	for _, c := range f.contacts {
		if c.Properties["email"] == email {
			return c, nil
		}
	}
	return nil, fmt.Errorf("search %s: %w", email, hubspot.ErrNotFound)
}

func (f *fakeCRM) UpdateContactProperties(_ context.Context, id string, props map[string]string) error {
	for k, v := range props {
		f.contacts[id].Properties[k] = v
	}
	return nil
}

type fixture struct {
	crm    *fakeCRM
	tokens *auth.Tokens
	store  *store.SQLiteStore
	h      http.Handler
}

func newFixture(t *testing.T, crmEnabled bool) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	crm := &fakeCRM{contacts: map[string]*hubspot.Contact{
		"42": {ID: "42", Properties: map[string]string{"email": "learner@example.com", "firstname": "Ada"}},
	}}
	meta := completion.NewMetadata(map[string][]string{"c1": {"m1", "m2"}}, nil)
	tokens := auth.NewTokens("test-secret")

	srv := New(Deps{
		Tracking: tracking.NewService(crm, meta, crmEnabled, "", nil),
		Tokens:   tokens,
		Users:    fakeUsers{"good": {ID: "user-1", Email: "learner@example.com"}},
		Contacts: crm,
		Store:    st,
		Metadata: meta,
		Origins:  []string{"https://hedgehog.cloud", "https://www.hedgehog.cloud"},
	})
	srv.now = func() time.Time { return time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC) }
	return &fixture{crm: crm, tokens: tokens, store: st, h: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const signedIn = "hhl_access_token=good"

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/health", "", "Origin", "https://www.hedgehog.cloud")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, "2025-10-01T00:00:00.000Z", body["timestamp"])
	assert.Equal(t, "https://www.hedgehog.cloud", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	rec = f.do(t, http.MethodGet, "/api/health", "", "Origin", "https://evil.example", "X-Request-ID", "req-1")
	assert.Equal(t, "https://hedgehog.cloud", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodOptions, "/api/enrollments", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestTrackEndpoint(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/events/track", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST only", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/events/track", "{nope")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := decodeBody(t, rec)["details"].(map[string]any)
	assert.Equal(t, "INVALID_JSON", details["code"])

	rec = f.do(t, http.MethodPost, "/events/track", `{"eventName":"learning_bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details = decodeBody(t, rec)["details"].(map[string]any)
	assert.Equal(t, "SCHEMA_VALIDATION_FAILED", details["code"])

	rec = f.do(t, http.MethodPost, "/events/track", `{"eventName":"learning_module_started","payload":{"module_slug":"m1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "logged", "mode": "anonymous"}, decodeBody(t, rec))

	big := `{"eventName":"learning_module_started","payload":{"module_slug":"` + strings.Repeat("x", 11000) + `"}}`
	rec = f.do(t, http.MethodPost, "/events/track", big)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details = decodeBody(t, rec)["details"].(map[string]any)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", details["code"])
}

func TestTrackWithContactToken(t *testing.T) {
	f := newFixture(t, true)
	token, err := f.tokens.Issue(auth.Contact{ContactID: "42", Email: "learner@example.com"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/events/track",
		`{"eventName":"learning_module_completed","course_slug":"c1","payload":{"module_slug":"m1"}}`,
		"Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "persisted", decodeBody(t, rec)["status"])
	require.Len(t, f.crm.events, 1)
	assert.Equal(t, "learner@example.com", f.crm.events[0].Email)

	rec = f.do(t, http.MethodGet, "/progress/aggregate?type=course&slug=c1&contactId=42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(50), body["percent"])
	assert.Equal(t, true, body["started"])

	rec = f.do(t, http.MethodGet, "/progress/read?email=nobody@example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/enrollments/list", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/progress/aggregate?type=module&slug=c1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":"learner@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "42", body["contactId"])
	assert.Equal(t, "Ada", body["firstname"])
	c, err := f.tokens.Verify(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, auth.Contact{ContactID: "42", Email: "learner@example.com"}, c)

	rec = f.do(t, http.MethodPost, "/auth/login", `{"email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/auth/me", "", "Cookie", "theme=dark; "+signedIn)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", decodeBody(t, rec)["userId"])
	assert.Equal(t, "no-store, private", rec.Header().Get("Cache-Control"))

	rec = f.do(t, http.MethodGet, "/auth/me", "", "Cookie", "hhl_access_token=bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="Hedgehog Learn"`, rec.Header().Get("WWW-Authenticate"))
}

func TestProtectedRequiresToken(t *testing.T) {
	f := newFixture(t, false)

	for _, target := range []string{"/api/enrollments", "/api/badges", "/api/progress/c1"} {
		rec := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.Equal(t, `Bearer realm="Hedgehog Learn"`, rec.Header().Get("WWW-Authenticate"), target)
		assert.Equal(t, "Unauthorized: Missing or invalid access token", decodeBody(t, rec)["error"], target)
	}

	rec := f.do(t, http.MethodGet, "/api/enrollments", "", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnrollments(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/enrollments", `{"courseSlug":"c1","enrollmentSource":"course_page"}`, "Cookie", signedIn)
	require.Equal(t, http.StatusCreated, rec.Code)
	e := decodeBody(t, rec)["enrollment"].(map[string]any)
	assert.Equal(t, "c1", e["courseSlug"])
	assert.Equal(t, "active", e["status"])

	rec = f.do(t, http.MethodPost, "/api/enrollments", `{"courseSlug":"c1"}`, "Cookie", signedIn)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_ENROLLED", decodeBody(t, rec)["details"].(map[string]any)["code"])

	rec = f.do(t, http.MethodPost, "/api/enrollments", `{"courseSlug":""}`, "Cookie", signedIn)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid enrollment data", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/api/enrollments", "", "Cookie", signedIn)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["enrollments"], 1)

	rec = f.do(t, http.MethodDelete, "/api/enrollments/c1", "", "Cookie", signedIn)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/enrollments/c1", "", "Cookie", signedIn)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Enrollment not found", decodeBody(t, rec)["error"])
}

func TestProgressIssuesCourseBadge(t *testing.T) {
	f := newFixture(t, false)
	post := func(module, ev string) map[string]any {
		rec := f.do(t, http.MethodPost, "/api/progress",
			fmt.Sprintf(`{"courseSlug":"c1","moduleId":%q,"eventType":%q}`, module, ev), "Cookie", signedIn)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeBody(t, rec)
	}

	rec := f.do(t, http.MethodPost, "/api/enrollments", `{"courseSlug":"c1"}`, "Cookie", signedIn)
	require.Equal(t, http.StatusCreated, rec.Code)

	p := post("m1", "started")["progress"].(map[string]any)
	assert.Equal(t, true, p["started"])
	assert.Equal(t, false, p["completed"])
	post("m1", "completed")

	badges, err := f.store.ListBadges(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, badges)

	post("m2", "completed")
	post("m2", "completed")

	rec = f.do(t, http.MethodGet, "/api/badges", "", "Cookie", signedIn)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)["badges"].([]any)
	require.Len(t, list, 1)
	badge := list[0].(map[string]any)
	assert.Equal(t, "course", badge["type"])
	assert.Equal(t, "c1", badge["metadata"].(map[string]any)["slug"])

	e, err := f.store.GetEnrollment(context.Background(), "user-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "completed", e.Status)

	rec = f.do(t, http.MethodGet, "/api/progress/c1", "", "Cookie", signedIn)
	require.Equal(t, http.StatusOK, rec.Code)
	mods := decodeBody(t, rec)["modules"].(map[string]any)
	assert.Len(t, mods, 2)
}

func TestQuizGradeEndpoint(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/quiz/grade", `{"module_slug":"m1","answers":[{"id":"q1","value":"a"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(100), body["score"])
	assert.Equal(t, true, body["pass"])

	rec = f.do(t, http.MethodPost, "/quiz/grade", `{"answers":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
