package mw

import (
	"net/http"
	"strings"
)

// CachePolicy defines caching behavior for a route pattern.
type CachePolicy struct {
	// Pattern is matched as a path prefix or substring.
	Pattern string
	// CacheControl is the Cache-Control header value to set.
	CacheControl string
}

// CacheConfig holds the cache middleware configuration.
type CacheConfig struct {
	// Policies are matched in order; the first match wins.
	Policies []CachePolicy
	// DefaultPolicy is applied when no policy matches (empty = no header set).
	DefaultPolicy string
}

// DefaultCacheConfig returns the cache policies of the API. Model state
// changes under the client while processing, so nothing but the OpenAPI
// document is cacheable.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultPolicy: "private, no-cache",
		Policies: []CachePolicy{
			{Pattern: "/healthz", CacheControl: "no-store"},
			{Pattern: "/readyz", CacheControl: "no-store"},
			{Pattern: "/api/v1/health", CacheControl: "no-cache"},
			{Pattern: "/openapi", CacheControl: "public, max-age=3600"},
			{Pattern: "/model/file", CacheControl: "private, no-store"},
		},
	}
}

// Cache returns middleware that sets Cache-Control headers based on route
// patterns. Requests other than GET and HEAD always get "no-store".
func Cache(cfg CacheConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}

			for _, policy := range cfg.Policies {
				if matchesPattern(r.URL.Path, policy.Pattern) {
					w.Header().Set("Cache-Control", policy.CacheControl)
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.DefaultPolicy != "" {
				w.Header().Set("Cache-Control", cfg.DefaultPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchesPattern(path, pattern string) bool {
	return strings.HasPrefix(path, pattern) || strings.Contains(path, pattern)
}
