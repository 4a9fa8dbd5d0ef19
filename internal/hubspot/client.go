package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"hedgehog-learn/internal/httpx"
)

const (
	contentTypeJSON = "application/json"
	acceptJSON      = contentTypeJSON
)

// ErrNotFound is returned for lookups that the API answers with 404.
var ErrNotFound = errors.New("hubspot: not found")

// Client talks to the HubSpot REST API with a private app or project token.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   string
	Retry   httpx.RetryConfig
	Log     *zap.Logger
}

func New(baseURL, token string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	tr := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout:   time.Minute,
			Transport: tr,
		},
		Token: token,
		Retry: httpx.HubSpotRetryConfig(),
		Log:   log,
	}
	c.Retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		reason := "rate limit hit"
		var herr *httpx.HTTPError
		if errors.As(err, &herr) && herr.CloudflareBlocked() {
			reason = "cloudflare block detected"
		}
		c.Log.Warn(reason+", retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Int("status", httpx.StatusCode(err)))
	}
	return c
}

// do sends a JSON request. in may be nil; out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c.Token == "" {
		return errors.New("hubspot: missing access token")
	}

	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = b
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return httpx.DoJSON(
		ctx,
		c.HTTP,
		func(ctx context.Context) (*http.Request, error) {
			var rd io.Reader
			if body != nil {
				rd = bytes.NewReader(body)
			}
			r, err := http.NewRequestWithContext(ctx, method, u, rd)
			if err != nil {
				return nil, err
			}
			if body != nil {
				r.Header.Set("Content-Type", contentTypeJSON)
			}
			r.Header.Set("Accept", acceptJSON)
			r.Header.Set("Accept-Encoding", httpx.AcceptEncoding)
			r.Header.Set("Authorization", "Bearer "+c.Token)
			return r, nil
		},
		out,
		c.Retry,
	)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if httpx.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("hubspot: %s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("hubspot: %s: %w", op, err)
}
