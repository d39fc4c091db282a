package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/lynk/internal/types"
)

var (
	// ErrMissingToken means the request carried no credential at all.
	ErrMissingToken = errors.New("auth token missing")
	// ErrInvalidToken covers expired, malformed, or badly signed tokens.
	ErrInvalidToken = errors.New("invalid auth token")
)

// UserLoader resolves a verified token subject into a full identity.
type UserLoader interface {
	GetUser(ctx context.Context, id types.UserID) (types.Identity, error)
}

// Authenticator validates the handshake JWT before a connection is upgraded.
// The cookie/header issuance side lives in the HTTP auth service; this side
// only needs the shared HMAC secret.
type Authenticator struct {
	secret []byte
	users  UserLoader
}

// New creates an Authenticator.
func New(secret []byte, users UserLoader) *Authenticator {
	return &Authenticator{secret: secret, users: users}
}

// Authenticate implements ws.Authenticator: extract the token, verify it, and
// attach the resolved identity. Any failure rejects the handshake before a
// single room is joined.
func (a *Authenticator) Authenticate(r *http.Request) (types.Identity, error) {
	token := extractToken(r)
	if token == "" {
		return types.Identity{}, ErrMissingToken
	}

	userID, err := a.verify(token)
	if err != nil {
		return types.Identity{}, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	identity, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return types.Identity{}, fmt.Errorf("resolve token subject: %w", err)
	}
	return identity, nil
}

// IssueToken mints a token for the given user. Used by the load tester and by
// deployments that run the realtime server standalone.
func (a *Authenticator) IssueToken(userID types.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) verify(token string) (types.UserID, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return types.UserID(claims.Subject), nil
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie("accessToken"); err == nil {
		return cookie.Value
	}
	return ""
}
