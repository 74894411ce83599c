package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

type contextKey string

const subjectKey contextKey = "auth_subject"

// Subject returns the authenticated caller id, or "" when the request was
// not authenticated.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

// Claims are the JWT claims accepted on mutating routes.
type Claims struct {
	DeveloperID string `json:"developer_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates HMAC-signed bearer tokens on mutating requests. Reads and
// the paths listed in skip are always allowed through.
type Auth struct {
	secret []byte
	skip   map[string]bool
	log    *logger.Logger
}

// NewAuth creates the middleware with an HS256 shared secret.
func NewAuth(secret string, skipPaths []string, log *logger.Logger) *Auth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &Auth{secret: []byte(secret), skip: skip, log: log}
}

// Handler enforces bearer auth on POST/PUT/DELETE requests.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skip[r.URL.Path] || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := a.validate(token)
		if err != nil {
			a.log.WithError(err).Warn("token validation failed")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		subject := claims.DeveloperID
		if subject == "" {
			subject = claims.Subject
		}
		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid claims")
	}
	return claims, nil
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}
