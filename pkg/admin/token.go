package admin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apierr "github.com/msfg/msfg/pkg/api/types/errors"
)

var ErrBadToken = errors.New("invalid session token")

// Tokens issues and verifies HS256 session tokens for operators.
type Tokens struct {
	secret []byte
	maxAge time.Duration
}

func NewTokens(secret string, maxAge time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), maxAge: maxAge}
}

// Issue creates a signed session token for name.
func (t *Tokens) Issue(name string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   name,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.maxAge)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a token, returning the subject.
func (t *Tokens) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrBadToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrBadToken
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token. The
// verified subject lands in the context under "admin-user".
func (t *Tokens) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || raw == "" {
				return apierr.Unauthorized("session token required", nil)
			}
			name, err := t.Verify(raw)
			if err != nil {
				return apierr.Unauthorized("session expired or invalid", err)
			}
			c.Set("admin-user", name)
			return next(c)
		}
	}
}
