package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is a scheduled task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic jobs run at most once per Every instead of on every cycle.
type Periodic interface {
	Every() time.Duration
}

// Registry holds jobs in registration order. Names are unique so metrics and
// logs can tell jobs apart.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry builds a registry preloaded with jobs. Nil jobs are skipped.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(jobs))}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("cron job name required")
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("cron job %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

// Schedule describes each job as name=cadence for the startup log.
func (r *Registry) Schedule() map[string]string {
	out := make(map[string]string, len(r.jobs))
	for _, job := range r.jobs {
		every := cadenceOf(job)
		if every <= 0 {
			out[job.Name()] = "every cycle"
			continue
		}
		out[job.Name()] = every.String()
	}
	return out
}

func cadenceOf(job Job) time.Duration {
	if p, ok := job.(Periodic); ok {
		return p.Every()
	}
	return 0
}
