package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"go.uber.org/zap"

	"hedgehog-learn/internal/httpx"
)

// AccessTokenCookie carries the Cognito access token.
const AccessTokenCookie = "hhl_access_token"

// JWKSCacheTTL bounds how long a fetched key set is trusted.
const JWKSCacheTTL = time.Hour

// User is the identity taken from a verified access token.
type User struct {
	ID       string `json:"userId"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

type cognitoClaims struct {
	jwt.Claims
	TokenUse string `json:"token_use"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Cognito verifies user pool access tokens against the pool's JWKS.
type Cognito struct {
	JWKSURL  string
	Issuer   string
	ClientID string
	HTTP     *http.Client
	Retry    httpx.RetryConfig
	Log      *zap.Logger

	now     func() time.Time
	mu      sync.Mutex
	keys    *jose.JSONWebKeySet
	expires time.Time
}

func NewCognito(jwksURL, issuer, clientID string, log *zap.Logger) *Cognito {
	if log == nil {
		log = zap.NewNop()
	}
	retry := httpx.DefaultRetryConfig()
	retry.MaxAttempts = 3
	return &Cognito{
		JWKSURL:  jwksURL,
		Issuer:   issuer,
		ClientID: clientID,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		Retry:    retry,
		Log:      log,
		now:      time.Now,
	}
}

func (c *Cognito) keySet(ctx context.Context) (*jose.JSONWebKeySet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys != nil && c.now().Before(c.expires) {
		return c.keys, nil
	}
	if c.JWKSURL == "" {
		return nil, errors.New("auth: cognito user pool not configured")
	}
	c.Log.Debug("fetching jwks", zap.String("url", c.JWKSURL))
	var set jose.JSONWebKeySet
	err := httpx.DoJSON(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.JWKSURL, nil)
	}, &set, c.Retry)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch JWKS: %w", err)
	}
	c.keys = &set
	c.expires = c.now().Add(JWKSCacheTTL)
	return c.keys, nil
}

// Verify checks an access token: RS256 signature by a pool key, issuer,
// expiry, token_use "access" and, when configured, client_id.
func (c *Cognito) Verify(ctx context.Context, token string) (User, error) {
	tok, err := jwt.ParseSigned(token)
	if err != nil || len(tok.Headers) != 1 {
		return User{}, errors.New("Invalid token format")
	}
	hdr := tok.Headers[0]
	if hdr.KeyID == "" {
		return User{}, errors.New("Token missing kid in header")
	}
	if hdr.Algorithm != string(jose.RS256) {
		return User{}, fmt.Errorf("unexpected signing algorithm %q", hdr.Algorithm)
	}
	set, err := c.keySet(ctx)
	if err != nil {
		return User{}, err
	}
	keys := set.Key(hdr.KeyID)
	if len(keys) == 0 {
		return User{}, fmt.Errorf("No matching JWK found for kid: %s", hdr.KeyID)
	}

	var claims cognitoClaims
	if err := tok.Claims(keys[0].Key, &claims); err != nil {
		return User{}, fmt.Errorf("invalid signature: %w", err)
	}
	if err := claims.Claims.ValidateWithLeeway(jwt.Expected{Issuer: c.Issuer, Time: c.now()}, 0); err != nil {
		return User{}, err
	}
	if claims.TokenUse != "access" {
		return User{}, fmt.Errorf("Invalid token_use: expected access, got %s", claims.TokenUse)
	}
	if c.ClientID != "" && claims.ClientID != c.ClientID {
		return User{}, fmt.Errorf("Invalid client_id: expected %s, got %s", c.ClientID, claims.ClientID)
	}

	id := claims.Subject
	if id == "" {
		id = claims.Username
	}
	if id == "" {
		return User{}, errors.New("Invalid token payload")
	}
	return User{ID: id, Username: claims.Username, Email: claims.Email}, nil
}

// TokenFromCookies finds the access token in one or more Cookie header values.
func TokenFromCookies(cookies ...string) string {
	r := &http.Request{Header: http.Header{"Cookie": cookies}}
	return tokenCookie(r)
}

func tokenCookie(r *http.Request) string {
	c, err := r.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// TokenFromRequest reads the token from the access cookie, falling back to a
// bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if t := tokenCookie(r); t != "" {
		return t
	}
	if t, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}
