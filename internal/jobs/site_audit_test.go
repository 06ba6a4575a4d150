package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"site-orchestrator/internal/runlog"
	"site-orchestrator/internal/tenant"
)

func testResolver(t *testing.T) *tenant.Resolver {
	t.Helper()
	r, err := tenant.Load("")
	if err != nil {
		t.Fatalf("load resolver: %v", err)
	}
	return r
}

func runBody(t *testing.T, body runlog.Body) *runlog.Record {
	t.Helper()
	runner := runlog.New(nil, nil, nil, "", false)
	rec, err := runner.Run(context.Background(), "test-job", runlog.Options{
		MaxDuration: 30 * time.Second,
		Margin:      time.Second,
	}, body)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return rec
}

func TestSiteAuditAllHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := testResolver(t)
	audit := NewSiteAudit(resolver, srv.Client())
	audit.baseURL = srv.URL

	rec := runBody(t, audit.Run)
	want := len(resolver.SiteIDs())
	if rec.ItemsSucceeded != want || rec.ItemsFailed != 0 {
		t.Fatalf("items = %d/%d, want %d healthy", rec.ItemsSucceeded, rec.ItemsFailed, want)
	}
	if rec.Summary["sitesOK"] != want {
		t.Fatalf("summary = %v", rec.Summary)
	}
	// Processed sites come back in the tenant-table fan-out order.
	ids := resolver.SiteIDs()
	if len(rec.SitesProcessed) != want {
		t.Fatalf("sitesProcessed = %v", rec.SitesProcessed)
	}
	for i := range ids {
		if rec.SitesProcessed[i] != ids[i] {
			t.Fatalf("sitesProcessed = %v, want fan-out order %v", rec.SitesProcessed, ids)
		}
	}
}

func TestSiteAuditDownstreamFailureIsolated(t *testing.T) {
	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n++
		// First site's fetch (and its retries) fail hard; the rest succeed.
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := testResolver(t)
	audit := NewSiteAudit(resolver, srv.Client())
	audit.baseURL = srv.URL

	rec := runBody(t, audit.Run)
	total := len(resolver.SiteIDs())
	if rec.ItemsFailed != 1 || rec.ItemsSucceeded != total-1 {
		t.Fatalf("items = %d ok / %d failed, want %d/%d", rec.ItemsSucceeded, rec.ItemsFailed, total-1, 1)
	}
	if rec.Status != runlog.StatusCompleted {
		t.Fatalf("status = %q: one bad tenant must not fail the run", rec.Status)
	}
}

func TestSitemapPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := testResolver(t)
	ping := NewSitemapPing(resolver, srv.Client())
	ping.baseURL = srv.URL

	rec := runBody(t, ping.Run)
	want := len(resolver.SiteIDs())
	if rec.Summary["sitemapsOK"] != want {
		t.Fatalf("summary = %v, want %d ok", rec.Summary, want)
	}
}

func TestCacheWarmFetchesEveryPath(t *testing.T) {
	hits := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := testResolver(t)
	warm := NewCacheWarm(resolver, srv.Client(), []string{"/", "/blog"})
	warm.baseURL = srv.URL

	rec := runBody(t, warm.Run)
	sites := len(resolver.SiteIDs())
	if rec.Summary["pathsWarmed"] != sites*2 || rec.Summary["pathsFailed"] != 0 {
		t.Fatalf("summary = %v, want %d paths warmed", rec.Summary, sites*2)
	}
	if hits["/"] != sites || hits["/blog"] != sites {
		t.Fatalf("hits = %v, want every path fetched once per site", hits)
	}
	if rec.Status != runlog.StatusCompleted {
		t.Fatalf("status = %q", rec.Status)
	}
}

func TestCacheWarmPartialFailureStillWarms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := testResolver(t)
	warm := NewCacheWarm(resolver, srv.Client(), []string{"/", "/broken"})
	warm.baseURL = srv.URL

	rec := runBody(t, warm.Run)
	sites := len(resolver.SiteIDs())
	if rec.Summary["pathsWarmed"] != sites || rec.Summary["pathsFailed"] != sites {
		t.Fatalf("summary = %v, want %d warmed / %d failed", rec.Summary, sites, sites)
	}
	// Partial warmth is not a site failure.
	if rec.ItemsFailed != 0 || rec.Status != runlog.StatusCompleted {
		t.Fatalf("items failed = %d status = %q, want clean run", rec.ItemsFailed, rec.Status)
	}
}

func TestRegistryOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Job{Name: "b"})
	reg.Register(Job{Name: "a"})
	reg.Register(Job{Name: "b", Category: "updated"})

	all := reg.All()
	if len(all) != 2 || all[0].Name != "b" || all[1].Name != "a" {
		t.Fatalf("All() = %v, want registration order with replacement", all)
	}
	if got, ok := reg.Get("b"); !ok || got.Category != "updated" {
		t.Fatalf("Get(b) = %+v", got)
	}
}
