// Package auth carries the calling identity through a request and issues the
// bearer tokens that establish it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Actor is who is calling. Patients act on their own bookings; admins act on
// any.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// System is the actor used by background jobs.
var System = Actor{UserID: "system", IsAdmin: true}

// CanActFor reports whether a may operate on userID's data.
func (a Actor) CanActFor(userID string) bool {
	return a.IsAdmin || (a.UserID != "" && a.UserID == userID)
}

type ctxKey struct{}

// WithActor stores a in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the actor placed by the auth middleware.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}

// Claims is the JWT payload. Subject holds the user id.
type Claims struct {
	Admin bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// ErrInvalidToken covers every reason a bearer token is rejected.
var ErrInvalidToken = errors.New("auth: invalid token")

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewIssuer(secret, issuer string) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for a valid for ttl.
func (i *Issuer) Issue(a Actor, ttl time.Duration) (string, error) {
	if a.UserID == "" {
		return "", errors.New("auth: user id is required")
	}
	now := i.now()
	claims := Claims{
		Admin: a.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its actor.
func (i *Issuer) Parse(token string) (Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now)}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Actor{}, ErrInvalidToken
	}
	return Actor{UserID: claims.Subject, IsAdmin: claims.Admin}, nil
}
