package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// unknownClient is the sentinel key when no client address can be derived.
const unknownClient = "unknown"

// ClientIP derives the rate-limit key from the request with a fixed header
// precedence: CDN header, then real-IP header, then the first entry of the
// forwarded-for list, then the socket address.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return unknownClient
}

// ScopedIP returns a key function namespacing ClientIP under scope, so
// limiters with different windows can share one store without incrementing
// each other's counters.
func ScopedIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + ClientIP(r)
	}
}
