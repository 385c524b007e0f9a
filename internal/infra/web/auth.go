// File: internal/infra/web/auth.go
package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "ops_session"

var errNoSession = errors.New("no session token")

// AuthManager mints and validates operator session tokens. A token travels
// either as a Bearer header (API clients) or as an HTTP-only cookie (the
// dashboard); both carry the same HS256 JWT.
type AuthManager struct {
	secret []byte
	domain string
	secure bool
	ttl    time.Duration
}

func NewAuthManager(secret string, secure bool, domain string, ttl time.Duration) *AuthManager {
	return &AuthManager{secret: []byte(secret), domain: domain, secure: secure, ttl: ttl}
}

type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Mint issues a fresh operator token and attaches it as a session cookie.
func (a *AuthManager) Mint(w http.ResponseWriter) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, OperatorClaims{
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	a.setCookie(w, signed, int(a.ttl.Seconds()))
	return signed, nil
}

// Clear expires the session cookie. The JWT itself stays valid until its
// expiry; there is no server-side revocation list.
func (a *AuthManager) Clear(w http.ResponseWriter) {
	a.setCookie(w, "", -1)
}

func (a *AuthManager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Domain:   a.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ParseFromRequest accepts "Authorization: Bearer <jwt>" first, then falls
// back to the session cookie.
func (a *AuthManager) ParseFromRequest(r *http.Request) (*OperatorClaims, error) {
	if hdr := r.Header.Get("Authorization"); len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return a.parse(strings.TrimSpace(hdr[7:]))
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return a.parse(c.Value)
	}
	return nil, errNoSession
}

func (a *AuthManager) parse(raw string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if !tok.Valid {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}
