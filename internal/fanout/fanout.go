// Package fanout drives one unit of work across many sites sequentially,
// isolating per-site failures and skipping remaining sites once the wall-clock
// budget expires.
package fanout

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"site-orchestrator/internal/deadline"
	"site-orchestrator/internal/telemetry"
)

// Result accumulates per-site outcomes. Every site ID in the input appears in
// exactly one of Results, Errors, or Skipped by the time ForEachSite returns.
// Attempted lists the sites that were actually started, in input order, so
// consumers can report processed sites deterministically.
type Result[T any] struct {
	Results   map[string]T
	Errors    map[string]string
	Attempted []string
	Skipped   []string
	Completed int
	Failed    int
	TimedOut  bool
}

// Fn is the per-site unit of work.
type Fn[T any] func(ctx context.Context, siteID string) (T, error)

// ForEachSite iterates siteIDs in input order, checking the deadline before
// starting each site. On expiry the remaining sites are appended to Skipped in
// original order and the loop stops. A site's error is recorded as a message
// string and never aborts the batch. A nil deadline gets the default budget.
func ForEachSite[T any](ctx context.Context, siteIDs []string, dl *deadline.Deadline, fn Fn[T]) *Result[T] {
	if dl == nil {
		dl = deadline.New(0, 0)
	}
	res := &Result[T]{
		Results: make(map[string]T, len(siteIDs)),
		Errors:  make(map[string]string),
	}

	for i, siteID := range siteIDs {
		if dl.Expired() {
			res.TimedOut = true
			res.Skipped = append(res.Skipped, siteIDs[i:]...)
			telemetry.SitesSkipped.Add(float64(len(siteIDs) - i))
			log.Warn().Int("skipped", len(siteIDs)-i).Dur("elapsed", dl.Elapsed()).Msg("budget expired, skipping remaining sites")
			break
		}

		telemetry.SitesProcessed.Inc()
		res.Attempted = append(res.Attempted, siteID)
		value, err := runSite(ctx, siteID, fn)
		if err != nil {
			res.Errors[siteID] = err.Error()
			res.Failed++
			log.Warn().Str("site", siteID).Err(err).Msg("site failed")
			continue
		}
		res.Results[siteID] = value
		res.Completed++
	}
	return res
}

// runSite converts a panicking site into a per-site error so one bad tenant
// cannot abort the batch.
func runSite[T any](ctx context.Context, siteID string, fn Fn[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, siteID)
}
