package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/leafsii/leafsii-farm/internal/farm"
)

type contextKey string

const contextKeyPrincipal contextKey = "farm.principal"

const clockSkew = time.Minute

// Authenticator resolves the calling wallet from an HS256 bearer token. The
// token subject is the wallet address.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(strings.TrimSpace(secret)),
		now:    time.Now,
	}
}

// IssueToken signs a token for subject. A zero ttl issues a token without
// expiry.
func (a *Authenticator) IssueToken(subject farm.Address, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth secret not configured")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:  string(subject),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) principal(tokenString string) (farm.Address, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth secret not configured")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	addr, err := farm.ParseAddress(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("subject: %w", err)
	}
	return addr, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// principal on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		addr, err := a.principal(tokenString)
		if err != nil {
			writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyPrincipal, addr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFrom returns the wallet authenticated for ctx.
func PrincipalFrom(ctx context.Context) (farm.Address, bool) {
	addr, ok := ctx.Value(contextKeyPrincipal).(farm.Address)
	return addr, ok && addr != ""
}

func extractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// OptionalMiddleware authenticates the request when it carries a bearer
// token and passes anonymous requests through.
func (a *Authenticator) OptionalMiddleware(next http.Handler) http.Handler {
	strict := a.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		strict.ServeHTTP(w, r)
	})
}
