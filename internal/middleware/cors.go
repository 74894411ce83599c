// Package middleware provides HTTP middleware for the trust engine API.
package middleware

import (
	"net/http"
	"strings"
)

// CORS handles cross-origin requests. An allowed origin of "*" permits all.
type CORS struct {
	origins  []string
	allowAll bool
}

// NewCORS creates the middleware from a list of allowed origins.
func NewCORS(origins []string) *CORS {
	c := &CORS{origins: origins}
	for _, o := range origins {
		if o == "*" {
			c.allowAll = true
		}
	}
	return c
}

// Handler applies the CORS headers and short-circuits preflight requests.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (c.allowAll || c.allowed(origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORS) allowed(origin string) bool {
	for _, o := range c.origins {
		if o == origin || strings.HasSuffix(origin, o) {
			return true
		}
	}
	return false
}
