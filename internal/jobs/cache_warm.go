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

// defaultWarmPaths are the pages worth priming when no explicit list is
// configured.
var defaultWarmPaths = []string{"/", "/sitemap.xml"}

// warmResult counts one site's warmed and failed paths.
type warmResult struct {
	Warmed int `json:"warmed"`
	Failed int `json:"failed"`
}

// CacheWarm primes each tenant's edge cache by fetching its hot paths, so the
// first visitor after a deploy or cache flush never pays the cold-render cost.
type CacheWarm struct {
	resolver *tenant.Resolver
	client   *http.Client
	policy   fetchx.Policy
	paths    []string
	baseURL  string
}

// NewCacheWarm builds the cache-warm job over the tenant table. paths may be
// nil for the default hot set.
func NewCacheWarm(resolver *tenant.Resolver, client *http.Client, paths []string) *CacheWarm {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if len(paths) == 0 {
		paths = defaultWarmPaths
	}
	policy := fetchx.DefaultPolicy()
	policy.MaxRetries = 1
	return &CacheWarm{
		resolver: resolver,
		client:   client,
		policy:   policy,
		paths:    paths,
	}
}

// Job returns the registry entry.
func (c *CacheWarm) Job(schedule string) Job {
	return Job{
		Name:     "cache-warm",
		Category: "performance",
		Schedule: schedule,
		Body:     c.Run,
	}
}

// Run fetches every configured path for every tenant. A site fails only when
// none of its paths could be warmed; partial warmth still counts.
func (c *CacheWarm) Run(ctx context.Context, h *runlog.Handle) (map[string]any, error) {
	siteIDs := c.resolver.SiteIDs()

	res := fanout.ForEachSite(ctx, siteIDs, h.Deadline(), func(ctx context.Context, siteID string) (warmResult, error) {
		var wr warmResult
		for _, path := range c.paths {
			url, err := c.siteURL(siteID, path)
			if err != nil {
				return wr, err
			}
			resp, err := fetchx.Do(ctx, c.client, fetchx.Request{URL: url}, c.policy)
			if err != nil {
				wr.Failed++
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				wr.Failed++
				continue
			}
			wr.Warmed++
		}
		if wr.Warmed == 0 && wr.Failed > 0 {
			return wr, fmt.Errorf("all %d paths failed", wr.Failed)
		}
		return wr, nil
	})

	runlog.Fold(h, res)

	var warmed, failed int
	for _, wr := range res.Results {
		warmed += wr.Warmed
		failed += wr.Failed
	}
	return map[string]any{
		"sitesOK":     res.Completed,
		"sitesFailed": res.Failed,
		"pathsWarmed": warmed,
		"pathsFailed": failed,
	}, nil
}

func (c *CacheWarm) siteURL(siteID, path string) (string, error) {
	if c.baseURL != "" {
		return c.baseURL + path, nil
	}
	host, ok := c.resolver.PrimaryHost(siteID)
	if !ok {
		return "", fmt.Errorf("no hostname mapped for site %s", siteID)
	}
	return "https://" + host + path, nil
}
