// Package jobs holds the per-tenant automation jobs driven by the run
// recorder and fan-out runner.
package jobs

import (
	"site-orchestrator/internal/runlog"
)

// Job is one registered automation job. Schedule is a standard cron
// expression; empty means manual trigger only.
type Job struct {
	Name     string
	Category string
	Schedule string
	Body     runlog.Body
}

// Registry is the fixed set of jobs known at startup.
type Registry struct {
	byName map[string]Job
	order  []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Job)}
}

// Register adds a job. Re-registering a name replaces it without changing the
// original order.
func (r *Registry) Register(j Job) {
	if _, exists := r.byName[j.Name]; !exists {
		r.order = append(r.order, j.Name)
	}
	r.byName[j.Name] = j
}

// Get looks a job up by name.
func (r *Registry) Get(name string) (Job, bool) {
	j, ok := r.byName[name]
	return j, ok
}

// All returns jobs in registration order.
func (r *Registry) All() []Job {
	out := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
