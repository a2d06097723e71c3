package httpapi

import (
	"net/http"
	"net/url"
	"strings"
)

// NewCORSMiddleware restricts browser access to the monitor API. The surface
// is read-only (GET plus the SSE stream), so preflight responses advertise
// exactly that. Allowed origins may be hostnames, host:port pairs, full
// origins with scheme, or the wildcard "*".
func NewCORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed, allowAll := normalizeOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
				// Same-origin or non-browser client; nothing to grant.
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case originPermitted(origin, allowed):
				w.Header().Set("Access-Control-Allow-Origin", origin)
			default:
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				writeJSONError(w, http.StatusForbidden, "origin not allowed")
				return
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, origin := range origins {
		trimmed := strings.ToLower(strings.TrimSpace(origin))
		switch trimmed {
		case "":
		case "*":
			allowAll = true
		default:
			allowed[trimmed] = struct{}{}
		}
	}
	return allowed, allowAll
}

// originPermitted matches the request origin against the allow list as a
// full origin, as host:port, and as a bare hostname.
func originPermitted(origin string, allowed map[string]struct{}) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, candidate := range []string{
		strings.ToLower(origin),
		strings.ToLower(parsed.Host),
		strings.ToLower(parsed.Hostname()),
	} {
		if candidate == "" {
			continue
		}
		if _, ok := allowed[candidate]; ok {
			return true
		}
	}
	return false
}
