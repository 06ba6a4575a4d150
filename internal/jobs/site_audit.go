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

// auditResult is one site's health check outcome.
type auditResult struct {
	Status    int   `json:"status"`
	LatencyMS int64 `json:"latency_ms"`
}

// SiteAudit fetches every tenant's public homepage and records availability.
type SiteAudit struct {
	resolver *tenant.Resolver
	client   *http.Client
	policy   fetchx.Policy
	// baseURL overrides the per-site https URL, for tests against a local
	// server. Empty in production.
	baseURL string
}

// NewSiteAudit builds the audit job over the tenant table.
func NewSiteAudit(resolver *tenant.Resolver, client *http.Client) *SiteAudit {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SiteAudit{
		resolver: resolver,
		client:   client,
		policy:   fetchx.DefaultPolicy(),
	}
}

// Job returns the registry entry. schedule may be empty for manual-only.
func (a *SiteAudit) Job(schedule string) Job {
	return Job{
		Name:     "site-audit",
		Category: "monitoring",
		Schedule: schedule,
		Body:     a.Run,
	}
}

// Run fans the health check out across all tenants under the run's budget.
func (a *SiteAudit) Run(ctx context.Context, h *runlog.Handle) (map[string]any, error) {
	siteIDs := a.resolver.SiteIDs()

	res := fanout.ForEachSite(ctx, siteIDs, h.Deadline(), func(ctx context.Context, siteID string) (auditResult, error) {
		url, err := a.siteURL(siteID, "/")
		if err != nil {
			return auditResult{}, err
		}

		start := time.Now()
		resp, err := fetchx.Do(ctx, a.client, fetchx.Request{URL: url}, a.policy)
		if err != nil {
			return auditResult{}, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return auditResult{}, fmt.Errorf("homepage returned %d", resp.StatusCode)
		}
		return auditResult{
			Status:    resp.StatusCode,
			LatencyMS: time.Since(start).Milliseconds(),
		}, nil
	})

	runlog.Fold(h, res)

	perSite := make(map[string]any, len(res.Results))
	for siteID, r := range res.Results {
		perSite[siteID] = r
	}
	return map[string]any{
		"sitesOK":     res.Completed,
		"sitesFailed": res.Failed,
		"audit":       perSite,
	}, nil
}

func (a *SiteAudit) siteURL(siteID, path string) (string, error) {
	if a.baseURL != "" {
		return a.baseURL + path, nil
	}
	host, ok := a.resolver.PrimaryHost(siteID)
	if !ok {
		return "", fmt.Errorf("no hostname mapped for site %s", siteID)
	}
	return "https://" + host + path, nil
}
