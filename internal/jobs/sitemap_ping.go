package jobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"site-orchestrator/internal/fanout"
	"site-orchestrator/internal/fetchx"
	"site-orchestrator/internal/runlog"
	"site-orchestrator/internal/tenant"
)

// SitemapPing verifies each tenant's sitemap is served, so search engines
// never crawl a dead URL after a deploy.
type SitemapPing struct {
	resolver *tenant.Resolver
	client   *http.Client
	policy   fetchx.Policy
	baseURL  string
}

// NewSitemapPing builds the sitemap job over the tenant table.
func NewSitemapPing(resolver *tenant.Resolver, client *http.Client) *SitemapPing {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	policy := fetchx.DefaultPolicy()
	policy.MaxRetries = 2
	return &SitemapPing{
		resolver: resolver,
		client:   client,
		policy:   policy,
	}
}

// Job returns the registry entry.
func (p *SitemapPing) Job(schedule string) Job {
	return Job{
		Name:     "sitemap-ping",
		Category: "seo",
		Schedule: schedule,
		Body:     p.Run,
	}
}

// Run checks /sitemap.xml for every tenant.
func (p *SitemapPing) Run(ctx context.Context, h *runlog.Handle) (map[string]any, error) {
	siteIDs := p.resolver.SiteIDs()

	res := fanout.ForEachSite(ctx, siteIDs, h.Deadline(), func(ctx context.Context, siteID string) (int, error) {
		url, err := p.siteURL(siteID, "/sitemap.xml")
		if err != nil {
			return 0, err
		}
		resp, err := fetchx.Do(ctx, p.client, fetchx.Request{URL: url}, p.policy)
		if err != nil {
			return 0, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("sitemap returned %d", resp.StatusCode)
		}
		return resp.StatusCode, nil
	})

	runlog.Fold(h, res)

	return map[string]any{
		"sitemapsOK":     res.Completed,
		"sitemapsFailed": res.Failed,
	}, nil
}

func (p *SitemapPing) siteURL(siteID, path string) (string, error) {
	if p.baseURL != "" {
		return p.baseURL + path, nil
	}
	host, ok := p.resolver.PrimaryHost(siteID)
	if !ok {
		return "", fmt.Errorf("no hostname mapped for site %s", siteID)
	}
	return "https://" + host + path, nil
}
