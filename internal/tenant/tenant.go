// Package tenant maps inbound hostnames to site identities and stamps tenant
// context onto the request pipeline.
package tenant

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var defaultSitesYAML []byte

// Site is one deployment-time tenant entry. Adding a tenant means updating
// the site table, not a runtime API.
type Site struct {
	SiteID    string   `yaml:"site_id"`
	Name      string   `yaml:"name"`
	Locale    string   `yaml:"locale"`
	Hostnames []string `yaml:"hostnames"`
}

type siteTable struct {
	Default string `yaml:"default"`
	Sites   []Site `yaml:"sites"`
}

// Context is the tenant identity resolved for one request. Immutable once
// resolved; reconstructed every request.
type Context struct {
	SiteID   string
	SiteName string
	Locale   string
	Hostname string
	IsRTL    bool
}

// Resolver answers hostname lookups against the static site table.
type Resolver struct {
	byHost map[string]Site
	sites  []Site
	def    Site
}

// NewResolver parses a site table. Unknown default IDs are an error: the
// fallback tenant must exist.
func NewResolver(raw []byte) (*Resolver, error) {
	var table siteTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse site table: %w", err)
	}
	if len(table.Sites) == 0 {
		return nil, fmt.Errorf("site table has no sites")
	}

	r := &Resolver{byHost: make(map[string]Site)}
	for _, s := range table.Sites {
		if s.SiteID == "" {
			return nil, fmt.Errorf("site with empty site_id")
		}
		r.sites = append(r.sites, s)
		for _, h := range s.Hostnames {
			r.byHost[strings.ToLower(h)] = s
		}
		if s.SiteID == table.Default {
			r.def = s
		}
	}
	if r.def.SiteID == "" {
		return nil, fmt.Errorf("default site %q not in table", table.Default)
	}
	return r, nil
}

// Load builds a resolver from an optional override file, falling back to the
// embedded table.
func Load(path string) (*Resolver, error) {
	if path == "" {
		return NewResolver(defaultSitesYAML)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site table: %w", err)
	}
	return NewResolver(raw)
}

// Resolve deterministically maps a hostname to its tenant. Unmatched
// hostnames resolve to the default tenant, never an error.
func (r *Resolver) Resolve(hostname string) Context {
	host := normalizeHost(hostname)
	site, ok := r.byHost[host]
	if !ok {
		site = r.def
	}
	return Context{
		SiteID:   site.SiteID,
		SiteName: site.Name,
		Locale:   site.Locale,
		Hostname: host,
		IsRTL:    site.Locale == "ar",
	}
}

// CanonicalHost returns the www-prefixed variant for a bare production
// hostname when one is mapped, for permanent-redirect consolidation.
func (r *Resolver) CanonicalHost(hostname string) (string, bool) {
	host := normalizeHost(hostname)
	if strings.HasPrefix(host, "www.") {
		return "", false
	}
	www := "www." + host
	if _, ok := r.byHost[www]; ok {
		return www, true
	}
	return "", false
}

// PrimaryHost returns the first mapped hostname for a site ID, used by jobs
// that fetch each site's public surface.
func (r *Resolver) PrimaryHost(siteID string) (string, bool) {
	for _, s := range r.sites {
		if s.SiteID == siteID && len(s.Hostnames) > 0 {
			return s.Hostnames[0], true
		}
	}
	return "", false
}

// SiteIDs lists every tenant in table order, deduplicated.
func (r *Resolver) SiteIDs() []string {
	seen := make(map[string]bool, len(r.sites))
	out := make([]string, 0, len(r.sites))
	for _, s := range r.sites {
		if seen[s.SiteID] {
			continue
		}
		seen[s.SiteID] = true
		out = append(out, s.SiteID)
	}
	return out
}

func normalizeHost(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}
