package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	exampleURL      = "https://api.hubapi.com/cms/v3/hubdb/tables/1/rows"
	expectedNoError = "Expected no error, got %v"
)

// Mock HTTP RoundTripper for testing
type mockRoundTripper struct {
	responses []*http.Response
	errors    []error
	index     int
	mux       sync.Mutex
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.index >= len(m.responses) {
		return nil, errors.New("no more responses")
	}

	resp := m.responses[m.index]
	err := m.errors[m.index]
	m.index++
	return resp, err
}

func (m *mockRoundTripper) calls() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.index
}

func newMockClient(responses []*http.Response, errs []error) (*http.Client, *mockRoundTripper) {
	for i := len(errs); i < len(responses); i++ {
		errs = append(errs, nil)
	}
	rt := &mockRoundTripper{responses: responses, errors: errs}
	return &http.Client{Transport: rt}, rt
}

func newMockResponse(statusCode int, body string, headers map[string]string) *http.Response {
	header := http.Header{}
	for k, v := range headers {
		header.Set(k, v)
	}
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     header,
	}
}

func getReq(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, exampleURL, nil)
}

// fastConfig keeps the HubSpot retry shape with millisecond waits.
func fastConfig() RetryConfig {
	cfg := HubSpotRetryConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 4 * time.Millisecond
	return cfg
}

func TestDoWithRetrySuccess(t *testing.T) {
	client, _ := newMockClient([]*http.Response{newMockResponse(200, `{"success": true}`, nil)}, nil)

	resp, body, err := DoWithRetry(context.Background(), client, getReq, DefaultRetryConfig())
	if err != nil {
		t.Fatalf(expectedNoError, err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected status code 200, got %d", resp.StatusCode)
	}
	if string(body) != `{"success": true}` {
		t.Errorf("Expected body %q, got %q", `{"success": true}`, string(body))
	}
}

func TestDoWithRetryBuildReqError(t *testing.T) {
	client, rt := newMockClient(nil, nil)

	buildReq := func(ctx context.Context) (*http.Request, error) {
		return nil, errors.New("request build error")
	}

	_, _, err := DoWithRetry(context.Background(), client, buildReq, DefaultRetryConfig())
	if err == nil || !strings.Contains(err.Error(), "request build error") {
		t.Errorf("Expected request build error, got %v", err)
	}
	if rt.calls() != 0 {
		t.Errorf("Expected no round trips, got %d", rt.calls())
	}
}

func TestDoWithRetryNonRetryableError(t *testing.T) {
	client, rt := newMockClient([]*http.Response{nil}, []error{errors.New("non-retryable error")})

	_, _, err := DoWithRetry(context.Background(), client, getReq, fastConfig())
	if err == nil || !strings.Contains(err.Error(), "non-retryable error") {
		t.Errorf("Expected non-retryable error, got %v", err)
	}
	if rt.calls() != 1 {
		t.Errorf("Expected a single attempt, got %d", rt.calls())
	}
}

func TestDoWithRetryRateLimitThenSuccess(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(429, `{"status":"error","category":"RATE_LIMITS"}`, nil),
		newMockResponse(200, `{"ok":true}`, nil),
	}, nil)

	var retries []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		retries = append(retries, attempt)
		if StatusCode(err) != 429 {
			t.Errorf("Expected OnRetry cause to carry status 429, got %v", err)
		}
	}

	_, body, err := DoWithRetry(context.Background(), client, getReq, cfg)
	if err != nil {
		t.Fatalf(expectedNoError, err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("Unexpected body %q", body)
	}
	if rt.calls() != 2 {
		t.Errorf("Expected 2 attempts, got %d", rt.calls())
	}
	if len(retries) != 1 || retries[0] != 1 {
		t.Errorf("Expected one retry after attempt 1, got %v", retries)
	}
}

func TestDoWithRetryCloudflareBlock(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(403, "<title>Attention Required! | Cloudflare</title>", nil),
		newMockResponse(200, `{}`, nil),
	}, nil)

	if _, _, err := DoWithRetry(context.Background(), client, getReq, fastConfig()); err != nil {
		t.Fatalf(expectedNoError, err)
	}
	if rt.calls() != 2 {
		t.Errorf("Expected Cloudflare 403 to be retried, got %d attempts", rt.calls())
	}
}

func TestDoWithRetryPlainForbiddenIsTerminal(t *testing.T) {
	client, rt := newMockClient([]*http.Response{
		newMockResponse(403, `{"message":"This app hasn't been granted all required scopes"}`, nil),
		newMockResponse(200, `{}`, nil),
	}, nil)

	resp, _, err := DoWithRetry(context.Background(), client, getReq, fastConfig())
	if StatusCode(err) != 403 {
		t.Fatalf("Expected HTTPError 403, got %v", err)
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Error("Expected the 403 response to be returned")
	}
	if rt.calls() != 1 {
		t.Errorf("Expected a single attempt, got %d", rt.calls())
	}
}

func TestDoWithRetryExhausted(t *testing.T) {
	responses := make([]*http.Response, 0, 4)
	for i := 0; i < 4; i++ {
		responses = append(responses, newMockResponse(429, "slow down", nil))
	}
	client, rt := newMockClient(responses, nil)

	_, _, err := DoWithRetry(context.Background(), client, getReq, fastConfig())
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != 429 {
		t.Fatalf("Expected final 429 HTTPError, got %v", err)
	}
	if rt.calls() != 4 {
		t.Errorf("Expected 4 attempts, got %d", rt.calls())
	}
}

func TestDoWithRetryContextCancelledDuringBackoff(t *testing.T) {
	client, _ := newMockClient([]*http.Response{
		newMockResponse(503, "unavailable", nil),
		newMockResponse(200, `{}`, nil),
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = time.Hour
	cfg.MaxDelay = time.Hour
	cfg.Jitter = 0
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	_, _, err := DoWithRetry(ctx, client, getReq, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	max := 1 * time.Second

	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
	}

	for _, tc := range testCases {
		if got := backoffDelay(tc.attempt, base, max, 0, 0); got != tc.expected {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.expected)
		}
	}

	if got := backoffDelay(1, base, max, 0, 5*time.Second); got != 5*time.Second {
		t.Errorf("Expected Retry-After to win, got %v", got)
	}

	jitter := 50 * time.Millisecond
	for i := 0; i < 20; i++ {
		got := backoffDelay(1, base, max, jitter, 0)
		if got < base || got >= base+jitter {
			t.Fatalf("jittered delay %v out of range", got)
		}
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleep did not return promptly on cancel")
	}
}

func TestDoJSON(t *testing.T) {
	client, _ := newMockClient([]*http.Response{
		newMockResponse(200, `{"id":"42","values":{"slug":"intro"}}`, nil),
	}, nil)

	var out struct {
		ID     string            `json:"id"`
		Values map[string]string `json:"values"`
	}
	if err := DoJSON(context.Background(), client, getReq, &out, fastConfig()); err != nil {
		t.Fatalf(expectedNoError, err)
	}
	if out.ID != "42" || out.Values["slug"] != "intro" {
		t.Errorf("Unexpected decode result %+v", out)
	}
}

func TestDoJSONEmptyBody(t *testing.T) {
	client, _ := newMockClient([]*http.Response{newMockResponse(204, "", nil)}, nil)

	var out map[string]any
	if err := DoJSON(context.Background(), client, getReq, &out, fastConfig()); err != nil {
		t.Fatalf("Expected empty body to succeed, got %v", err)
	}
}

func TestDoJSONInvalid(t *testing.T) {
	client, _ := newMockClient([]*http.Response{newMockResponse(200, `{not json`, nil)}, nil)

	var out map[string]any
	err := DoJSON(context.Background(), client, getReq, &out, fastConfig())
	if err == nil || !strings.Contains(err.Error(), "json parse error") {
		t.Errorf("Expected json parse error, got %v", err)
	}
}
