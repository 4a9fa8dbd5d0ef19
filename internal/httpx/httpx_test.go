package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func TestSnippet(t *testing.T) {
	testCases := []struct {
		input    string
		max      int
		expected string
	}{
		{"short text", 100, "short text"},
		{"", 100, ""},
		{"  trimmed  ", 100, "trimmed"},
		{"long text that should be truncated", 10, "long text …"},
	}

	for _, tc := range testCases {
		result := snippet([]byte(tc.input), tc.max)
		if result != tc.expected {
			t.Errorf("snippet(%q, %d) = %q, want %q", tc.input, tc.max, result, tc.expected)
		}
	}
}

func TestHTTPError(t *testing.T) {
	err := &HTTPError{
		Method:     "GET",
		URL:        "https://api.hubapi.com/cms/v3/hubdb/tables/1/rows",
		StatusCode: 404,
		Body:       []byte("Not Found"),
	}

	expected := "http error: GET https://api.hubapi.com/cms/v3/hubdb/tables/1/rows status=404 body=Not Found"
	if err.Error() != expected {
		t.Errorf("HTTPError.Error() = %q, want %q", err.Error(), expected)
	}

	wrapped := errors.Join(errors.New("context"), err)
	if StatusCode(wrapped) != 404 {
		t.Errorf("StatusCode(wrapped) = %d, want 404", StatusCode(wrapped))
	}
	if StatusCode(errors.New("plain")) != 0 {
		t.Error("Expected StatusCode of a plain error to be 0")
	}
}

func TestIsCloudflareBlock(t *testing.T) {
	testCases := []struct {
		status   int
		body     string
		expected bool
	}{
		{403, "<html>Attention Required! | Cloudflare</html>", true},
		{403, "blocked, cf-ray: 8a1b2c", true},
		{403, `{"message":"missing scopes"}`, false},
		{429, "Cloudflare", false},
	}

	for _, tc := range testCases {
		if got := IsCloudflareBlock(tc.status, []byte(tc.body)); got != tc.expected {
			t.Errorf("IsCloudflareBlock(%d, %q) = %v, want %v", tc.status, tc.body, got, tc.expected)
		}
	}

	herr := &HTTPError{StatusCode: 403, Body: []byte("cf-ray")}
	if !herr.CloudflareBlocked() {
		t.Error("Expected HTTPError.CloudflareBlocked to be true")
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 8 {
		t.Errorf("Expected MaxAttempts to be 8, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseDelay != 700*time.Millisecond {
		t.Errorf("Expected BaseDelay to be 700ms, got %v", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("Expected MaxDelay to be 30s, got %v", cfg.MaxDelay)
	}
	if !cfg.Retry5xx {
		t.Error("Expected Retry5xx to be true")
	}

	expectedStatuses := []int{429, 408, 425, 503, 502, 504}
	for _, status := range expectedStatuses {
		if !cfg.RetryStatuses[status] {
			t.Errorf("Expected status %d to be retryable", status)
		}
	}
}

func TestHubSpotRetryConfig(t *testing.T) {
	cfg := HubSpotRetryConfig()

	if cfg.MaxAttempts != 4 {
		t.Errorf("Expected 4 attempts (1 + 3 retries), got %d", cfg.MaxAttempts)
	}
	if cfg.Jitter != 0 {
		t.Errorf("Expected no jitter, got %v", cfg.Jitter)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := backoffDelay(i+1, cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter, 0); got != w {
			t.Errorf("attempt %d: expected delay %v, got %v", i+1, w, got)
		}
	}

	if !isRetryableStatus(403, []byte("Cloudflare"), cfg) {
		t.Error("Expected Cloudflare 403 to be retryable")
	}
	if isRetryableStatus(403, []byte("forbidden"), cfg) {
		t.Error("Expected plain 403 to be terminal")
	}
}

func TestIsRetryableStatus(t *testing.T) {
	cfg := DefaultRetryConfig()

	for i := 500; i <= 599; i++ {
		if !isRetryableStatus(i, nil, cfg) {
			t.Errorf("Expected status %d to be retryable", i)
		}
	}

	nonRetryableStatuses := []int{400, 401, 403, 404, 422}
	for _, status := range nonRetryableStatuses {
		if isRetryableStatus(status, nil, cfg) {
			t.Errorf("Expected status %d to not be retryable", status)
		}
	}

	cfg.Retry5xx = false
	if isRetryableStatus(500, nil, cfg) {
		t.Error("Expected status 500 to not be retryable when Retry5xx is false")
	}
	if !isRetryableStatus(429, nil, cfg) {
		t.Error("Expected status 429 to be retryable regardless of Retry5xx")
	}
}

func TestIsRetryableNetErr(t *testing.T) {
	if isRetryableNetErr(context.Canceled) {
		t.Error("Expected context.Canceled to not be retryable")
	}
	if !isRetryableNetErr(context.DeadlineExceeded) {
		t.Error("Expected context.DeadlineExceeded to be retryable")
	}
	if !isRetryableNetErr(&timeoutError{}) {
		t.Error("Expected timeout error to be retryable")
	}
	if !isRetryableNetErr(errors.New("connection reset by peer")) {
		t.Error("Expected 'connection reset' error to be retryable")
	}
	if !isRetryableNetErr(errors.New("write: broken pipe")) {
		t.Error("Expected 'broken pipe' error to be retryable")
	}
	if !isRetryableNetErr(errors.New("unexpected EOF")) {
		t.Error("Expected 'EOF' error to be retryable")
	}
	if isRetryableNetErr(errors.New("some other error")) {
		t.Error("Expected 'some other error' to not be retryable")
	}
}

const retryAfterHeader = "Retry-After"

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set(retryAfterHeader, "30")

	if d := ParseRetryAfter(resp); d != 30*time.Second {
		t.Errorf("Expected 30s, got %v", d)
	}

	past := time.Now().Add(-60 * time.Second)
	resp.Header.Set(retryAfterHeader, past.UTC().Format(http.TimeFormat))
	if d := ParseRetryAfter(resp); d != 0 {
		t.Errorf("Expected 0 for past date, got %v", d)
	}

	resp.Header.Set(retryAfterHeader, "invalid")
	if d := ParseRetryAfter(resp); d != 0 {
		t.Errorf("Expected 0 for invalid format, got %v", d)
	}

	resp.Header.Del(retryAfterHeader)
	if d := ParseRetryAfter(resp); d != 0 {
		t.Errorf("Expected 0 for empty header, got %v", d)
	}
}

func TestReadBodyDecodesContentEncoding(t *testing.T) {
	payload := `{"results":[]}`

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	if _, err := bw.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	bw.Close()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	gw.Close()

	testCases := []struct {
		encoding string
		body     []byte
	}{
		{"", []byte(payload)},
		{"br", br.Bytes()},
		{"gzip", gz.Bytes()},
	}

	for _, tc := range testCases {
		resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(tc.body))}
		if tc.encoding != "" {
			resp.Header.Set("Content-Encoding", tc.encoding)
		}
		got, err := readBody(resp)
		if err != nil {
			t.Fatalf("readBody(%q) error: %v", tc.encoding, err)
		}
		if string(got) != payload {
			t.Errorf("readBody(%q) = %q, want %q", tc.encoding, got, payload)
		}
	}
}

// Mock implementation of net.Error for testing
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "timeout error" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
