// Package deadline tracks elapsed and remaining time against a wall-clock
// execution budget shared with the hosting environment.
package deadline

import "time"

// Defaults match a typical serverless hard limit. Callers running under a
// longer-lived execution context should override the budget; the default
// under-utilizes a longer budget but never exceeds it.
const (
	DefaultMargin = 5 * time.Second
	DefaultBudget = 60 * time.Second
)

// Deadline is an immutable budget created at job start. All derived facts are
// computed from wall-clock time at query time, never cached.
type Deadline struct {
	start  time.Time
	margin time.Duration
	budget time.Duration
	now    func() time.Time
}

// New creates a Deadline starting now. Non-positive arguments fall back to the
// defaults.
func New(margin, budget time.Duration) *Deadline {
	return NewAt(margin, budget, time.Now)
}

// NewAt creates a Deadline with an injected clock. Tests use this to pin the
// boundary millisecond; production code should call New.
func NewAt(margin, budget time.Duration, now func() time.Time) *Deadline {
	if margin <= 0 {
		margin = DefaultMargin
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Deadline{
		start:  now(),
		margin: margin,
		budget: budget,
		now:    now,
	}
}

// cutoff is the instant after which no new work should start.
func (d *Deadline) cutoff() time.Time {
	return d.start.Add(d.budget - d.margin)
}

// Expired reports whether the safety-margin-adjusted budget has run out.
func (d *Deadline) Expired() bool {
	return !d.now().Before(d.cutoff())
}

// Remaining returns the time left before the cutoff, floored at zero.
func (d *Deadline) Remaining() time.Duration {
	rem := d.cutoff().Sub(d.now())
	if rem < 0 {
		return 0
	}
	return rem
}

// Elapsed returns the time since the Deadline was created.
func (d *Deadline) Elapsed() time.Duration {
	return d.now().Sub(d.start)
}
