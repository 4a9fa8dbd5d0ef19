// Package auth issues and verifies the tokens the learning API accepts:
// HS256 tokens minted for CRM contacts and Cognito RS256 access tokens.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
)

const (
	Issuer      = "hedgehog-learn"
	Audience    = "hedgehog-learn-frontend"
	TokenExpiry = 24 * time.Hour
)

var (
	ErrMissingSecret      = errors.New("JWT_SECRET environment variable not configured")
	ErrTokenExpired       = errors.New("Token has expired")
	ErrInvalidSignature   = errors.New("Invalid token signature")
	ErrVerificationFailed = errors.New("Token verification failed")
)

// Contact is the identity carried by a contact token.
type Contact struct {
	ContactID string `json:"contactId"`
	Email     string `json:"email"`
}

type contactClaims struct {
	jwt.Claims
	Contact
}

// Tokens signs and verifies contact tokens with a shared secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Issue signs c with a 24h expiry.
func (t *Tokens) Issue(c Contact) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrMissingSecret
	}
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: t.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}
	now := t.now()
	claims := contactClaims{
		Claims: jwt.Claims{
			Issuer:   Issuer,
			Audience: jwt.Audience{Audience},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(TokenExpiry)),
		},
		Contact: c,
	}
	return jwt.Signed(sig).Claims(claims).CompactSerialize()
}

// Verify checks signature, issuer, audience and expiry. Expired tokens yield
// ErrTokenExpired; bad signatures and claim mismatches ErrInvalidSignature;
// anything else ErrVerificationFailed.
func (t *Tokens) Verify(token string) (Contact, error) {
	if len(t.secret) == 0 {
		return Contact{}, ErrMissingSecret
	}
	tok, err := jwt.ParseSigned(token)
	if err != nil {
		return Contact{}, ErrInvalidSignature
	}
	if len(tok.Headers) != 1 || tok.Headers[0].Algorithm != string(jose.HS256) {
		return Contact{}, ErrInvalidSignature
	}
	var claims contactClaims
	if err := tok.Claims(t.secret, &claims); err != nil {
		return Contact{}, ErrInvalidSignature
	}
	err = claims.Claims.ValidateWithLeeway(jwt.Expected{
		Issuer:   Issuer,
		Audience: jwt.Audience{Audience},
		Time:     t.now(),
	}, 0)
	switch {
	case err == nil:
		return claims.Contact, nil
	case errors.Is(err, jwt.ErrExpired):
		return Contact{}, ErrTokenExpired
	case errors.Is(err, jwt.ErrInvalidIssuer), errors.Is(err, jwt.ErrInvalidAudience):
		return Contact{}, ErrInvalidSignature
	default:
		return Contact{}, ErrVerificationFailed
	}
}

// ContactFromHeader verifies a "Bearer <token>" header. It returns false for
// a missing or invalid token.
func (t *Tokens) ContactFromHeader(header string) (Contact, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Contact{}, false
	}
	c, err := t.Verify(token)
	if err != nil {
		return Contact{}, false
	}
	return c, true
}
