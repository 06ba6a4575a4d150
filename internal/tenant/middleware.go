package tenant

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ctxKey struct{}

// FromContext returns the tenant context stamped by the pipeline middleware.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// Exempt path prefixes for the origin check: machine-to-machine surfaces that
// never carry a browser Origin.
var originExemptPrefixes = []string{
	"/api/cron/",
	"/api/webhooks/",
	"/api/internal/",
}

const (
	visitorCookie     = "visitor_id"
	sessionCookie     = "session_id"
	attributionCookie = "attribution"

	visitorTTL = 365 * 24 * time.Hour
	sessionTTL = 30 * time.Minute
)

var utmValuePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Pipeline resolves the tenant for each request and applies the request-edge
// policies that share its invocation point: canonical www redirect, origin
// validation on mutating API calls, visitor/session identifier issuance, and
// UTM attribution capture.
func (r *Resolver) Pipeline(production bool, allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tc := r.Resolve(req.Host)

			if production {
				if www, ok := r.CanonicalHost(req.Host); ok {
					target := "https://" + www + req.URL.RequestURI()
					http.Redirect(w, req, target, http.StatusPermanentRedirect)
					return
				}
			}

			if rejected := rejectCrossOrigin(w, req, allowed); rejected {
				return
			}

			issueIdentifiers(w, req, production)
			captureAttribution(w, req, production)

			w.Header().Set("X-Site-Id", tc.SiteID)
			w.Header().Set("X-Site-Locale", tc.Locale)

			ctx := context.WithValue(req.Context(), ctxKey{}, tc)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// rejectCrossOrigin enforces the Origin allow-list on mutating API methods.
func rejectCrossOrigin(w http.ResponseWriter, req *http.Request, allowed map[string]bool) bool {
	switch req.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	if !strings.HasPrefix(req.URL.Path, "/api/") {
		return false
	}
	for _, prefix := range originExemptPrefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			return false
		}
	}

	origin := strings.ToLower(strings.TrimRight(req.Header.Get("Origin"), "/"))
	if origin == "" || !allowed[origin] {
		log.Warn().Str("path", req.URL.Path).Str("origin", origin).Msg("cross-origin request rejected")
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return true
	}
	return false
}

// issueIdentifiers sets long-lived visitor and short-lived session cookies if
// absent. Values come from uuid, which draws from crypto/rand.
func issueIdentifiers(w http.ResponseWriter, req *http.Request, production bool) {
	if _, err := req.Cookie(visitorCookie); err != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     visitorCookie,
			Value:    uuid.NewString(),
			Path:     "/",
			MaxAge:   int(visitorTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   production,
		})
	}
	if _, err := req.Cookie(sessionCookie); err != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    uuid.NewString(),
			Path:     "/",
			MaxAge:   int(sessionTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   production,
		})
	}
}

// captureAttribution sanitizes utm_* query parameters and persists them to a
// cookie for later attribution. Values are restricted to
// alphanumeric/hyphen/underscore.
func captureAttribution(w http.ResponseWriter, req *http.Request, production bool) {
	params := map[string]string{}
	for key, values := range req.URL.Query() {
		if !strings.HasPrefix(key, "utm_") || len(values) == 0 {
			continue
		}
		clean := utmValuePattern.ReplaceAllString(values[0], "")
		if clean != "" {
			params[key] = clean
		}
	}
	if len(params) == 0 {
		return
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     attributionCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   int(visitorTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   production,
	})
}
