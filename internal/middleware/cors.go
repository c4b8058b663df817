package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls which browser origins may call the command endpoint.
// Most callers are bots and never send an Origin header, so the default
// allows no cross-origin traffic at all.
type CORSConfig struct {
	// AllowedOrigins holds exact origins or "*.example.com" suffix patterns.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig returns a config that denies every origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", OperatorKeyHeader, RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         600,
	}
}

// OperatorKeyHeader carries the plaintext operator key for exempt commands.
const OperatorKeyHeader = "X-Operator-Key"

type originMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.ToLower(strings.TrimSpace(o))
		if suffix, ok := strings.CutPrefix(o, "*"); ok && strings.HasPrefix(suffix, ".") {
			m.suffixes = append(m.suffixes, suffix)
			continue
		}
		if o != "" {
			m.exact[o] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	origin = strings.ToLower(origin)
	if _, ok := m.exact[origin]; ok {
		return true
	}
	_, host, found := strings.Cut(origin, "://")
	if !found {
		return false
	}
	for _, suffix := range m.suffixes {
		// "*.example.com" matches sub.example.com but never example.com itself.
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}

// CORS answers preflight requests and decorates allowed cross-origin
// responses. Requests without an Origin header pass through untouched.
// Preflights from unknown origins are refused with 403; simple requests
// from them proceed without CORS headers so the browser discards the reply.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	matcher := newOriginMatcher(cfg.AllowedOrigins)
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions
			if !matcher.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
