package middleware

import (
	"context"
	"net/http"
	"strings"
)

// cacheBypassKey is the context key for an operator-approved cache bypass.
type cacheBypassKey struct{}

// CacheBypass honours "Cache-Control: no-cache" on public routes only when the
// request also carries a valid operator token. Anonymous no-cache requests are
// served normally, so they cannot be used to hammer the upstream providers.
// With an empty signing key nobody can bypass the cache this way.
func CacheBypass(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.SigningKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RequestsNoCache(r) {
				if token, ok := bearerToken(r); ok {
					if subject, err := ValidateAdminToken(cfg, token); err == nil {
						r = r.WithContext(context.WithValue(r.Context(), cacheBypassKey{}, subject))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CacheBypassRequested reports whether CacheBypass approved skipping the cache.
func CacheBypassRequested(ctx context.Context) bool {
	sub, ok := ctx.Value(cacheBypassKey{}).(string)
	return ok && sub != ""
}

// RequestsNoCache reports whether the Cache-Control header carries no-cache.
func RequestsNoCache(r *http.Request) bool {
	for _, directive := range strings.Split(r.Header.Get("Cache-Control"), ",") {
		if strings.EqualFold(strings.TrimSpace(directive), "no-cache") {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return header[len(bearerPrefix):], true
}
