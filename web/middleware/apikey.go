// Package middleware provides the admin key gate and rate limiting of the bygga API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/bygga/bygga/web/handlers"
)

// publicRoute is a method and path prefix reachable without the admin key.
// An empty method matches every method.
type publicRoute struct {
	method string
	prefix string
}

var publicRoutes = []publicRoute{
	{"", "/api/auth"},
	{http.MethodGet, "/api/project"},
	{http.MethodPost, "/api/secret/validate"},
	{http.MethodGet, "/api/task"},
	{http.MethodPost, "/api/task"},
	{"", "/api/order"},
	{"", "/api/payment/webhook"},
	{"", "/health"},
	{"", "/metrics"},
}

// IsPublic reports whether a request may pass without the admin key
func IsPublic(method, path string) bool {
	for _, route := range publicRoutes {
		if route.method != "" && route.method != method {
			continue
		}
		if path == route.prefix || strings.HasPrefix(path, route.prefix+"/") {
			return true
		}
	}
	return false
}

// APIKey rejects non-public requests whose x-api-key header is not the md5 hex digest of
// apiKey. Every request gets the outcome of the check on its context, so public handlers
// can decide how much to reveal.
func APIKey(apiKey string) func(http.Handler) http.Handler {
	digest := handlers.APIKeyDigest(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			valid := handlers.CheckAPIKey(r.Header.Get("x-api-key"), digest)
			if !valid && !IsPublic(r.Method, r.URL.Path) {
				handlers.WriteError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(handlers.WithAPIKeyValid(r.Context(), valid)))
		})
	}
}
