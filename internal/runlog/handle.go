package runlog

import (
	"sync"
	"time"

	"site-orchestrator/internal/deadline"
	"site-orchestrator/internal/fanout"
)

// Handle is the progress reporter passed into a job body. It is safe for
// concurrent use by a parallelized body.
type Handle struct {
	mu        sync.Mutex
	dl        *deadline.Deadline
	processed int
	succeeded int
	failed    int
	sites     []string
	skipped   []string
	siteSeen  map[string]bool
	skipSeen  map[string]bool
	timedOut  bool
}

func newHandle(dl *deadline.Deadline) *Handle {
	return &Handle{
		dl:       dl,
		siteSeen: make(map[string]bool),
		skipSeen: make(map[string]bool),
	}
}

// TrackItem increments the processed counter plus succeeded or failed.
func (h *Handle) TrackItem(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processed++
	if success {
		h.succeeded++
	} else {
		h.failed++
	}
}

// AddSite appends a site to the processed list, deduplicated.
func (h *Handle) AddSite(siteID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.siteSeen[siteID] {
		return
	}
	h.siteSeen[siteID] = true
	h.sites = append(h.sites, siteID)
}

// SkipSite appends a site to the skipped list, deduplicated.
func (h *Handle) SkipSite(siteID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.skipSeen[siteID] {
		return
	}
	h.skipSeen[siteID] = true
	h.skipped = append(h.skipped, siteID)
}

// Expired checks the run's deadline. Once it observes expiry the timed-out
// flag latches, so the final status reflects it even if the body checked only
// once and then finished its in-flight work.
func (h *Handle) Expired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dl.Expired() {
		h.timedOut = true
	}
	return h.timedOut
}

// Elapsed returns the time since the run started.
func (h *Handle) Elapsed() time.Duration {
	return h.dl.Elapsed()
}

// Deadline exposes the run's budget so the body can thread it into
// fanout.ForEachSite rather than letting the runner invent a second one.
func (h *Handle) Deadline() *deadline.Deadline {
	return h.dl
}

// TimedOut reports whether expiry was ever observed.
func (h *Handle) TimedOut() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timedOut
}

func (h *Handle) snapshot(rec *Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec.ItemsProcessed = h.processed
	rec.ItemsSucceeded = h.succeeded
	rec.ItemsFailed = h.failed
	rec.SitesProcessed = append(make([]string, 0, len(h.sites)), h.sites...)
	rec.SitesSkipped = append(make([]string, 0, len(h.skipped)), h.skipped...)
	rec.TimedOut = h.timedOut
}

// Fold merges a fan-out result into the handle: attempted sites become
// processed sites and item counts in attempt order, skipped sites are
// recorded, and an observed fan-out timeout latches the handle's timed-out
// flag.
func Fold[T any](h *Handle, res *fanout.Result[T]) {
	for _, siteID := range res.Attempted {
		h.AddSite(siteID)
		_, failed := res.Errors[siteID]
		h.TrackItem(!failed)
	}
	for _, siteID := range res.Skipped {
		h.SkipSite(siteID)
	}
	if res.TimedOut {
		h.mu.Lock()
		h.timedOut = true
		h.mu.Unlock()
	}
}
