// Package jobs tracks background pipelines launched by the shell until their
// exit status has been collected.
package jobs

import (
	"errors"
	"sync"
	"time"
)

// DefaultCapacity is the number of jobs a Registry tracks unless configured
// otherwise.
const DefaultCapacity = 64

// ErrRegistryFull is returned by Create if no more jobs can be tracked.
var ErrRegistryFull = errors.New("job table full")

// Job is a background process tracked by the registry.
type Job struct {
	// PID of the process that orchestrates the pipeline.
	PID int
	// Command holds the text the job was started with.
	Command string
	// StartedAt is when the job was registered.
	StartedAt time.Time
}

// Report describes the state of a job at the time it was checked.
type Report struct {
	Job Job
	// Exited is true if the job terminated and was removed from the registry.
	Exited bool
	// Status is the exit code of an exited job.
	Status int
	// Elapsed is the wall clock time between registration and collection.
	Elapsed time.Duration
}

// Registry holds the background jobs of one shell.
//
// Every method is safe to call from multiple goroutines. A pid's exit status
// is collected while holding the registry lock, so a job is removed exactly
// once no matter which path collects it.
type Registry struct {
	mu       sync.Mutex
	jobs     []Job
	wait     WaitFunc
	now      func() time.Time
	capacity int
}

// Option configures a Registry.
type Option func(*Registry)

// WithWaitFunc replaces the status check, WaitNoHang by default.
func WithWaitFunc(wait WaitFunc) Option {
	return func(r *Registry) {
		r.wait = wait
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithCapacity sets the maximum number of tracked jobs.
func WithCapacity(capacity int) Option {
	return func(r *Registry) {
		r.capacity = capacity
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		wait:     WaitNoHang,
		now:      time.Now,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts tracking pid. The command text is copied.
func (r *Registry) Create(pid int, command string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.jobs) >= r.capacity {
		return Job{}, ErrRegistryFull
	}

	job := Job{
		PID:       pid,
		Command:   string(append([]byte(nil), command...)),
		StartedAt: r.now(),
	}
	r.jobs = append(r.jobs, job)
	return job, nil
}

// Remove stops tracking pid, returning whether it was tracked.
func (r *Registry) Remove(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(pid)
}

func (r *Registry) removeLocked(pid int) bool {
	for i, job := range r.jobs {
		if job.PID == pid {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup finds the job for pid.
func (r *Registry) Lookup(pid int) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range r.jobs {
		if job.PID == pid {
			return job, true
		}
	}
	return Job{}, false
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.jobs)
}

// List returns a snapshot of the tracked jobs in insertion order.
func (r *Registry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Job(nil), r.jobs...)
}

// ListAndReap checks every job once. Jobs that exited are removed and
// reported with their status, jobs that are still running are reported as
// live.
func (r *Registry) ListAndReap() []Report {
	return r.collect(true)
}

// Reap removes and reports the jobs that exited, leaving running jobs alone.
func (r *Registry) Reap() []Report {
	return r.collect(false)
}

func (r *Registry) collect(includeLive bool) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reports []Report
	remaining := r.jobs[:0]
	for _, job := range r.jobs {
		status, exited, err := r.wait(job.PID)
		switch {
		case errors.Is(err, ErrNotChild):
			// Someone else collected it, the status is lost.
			status, exited = -1, true
		case err != nil:
			exited = false
		}

		if !exited {
			remaining = append(remaining, job)
			if includeLive {
				reports = append(reports, Report{Job: job})
			}
			continue
		}

		elapsed := r.now().Sub(job.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		reports = append(reports, Report{
			Job:     job,
			Exited:  true,
			Status:  status,
			Elapsed: elapsed,
		})
	}

	// Clear the tail so removed jobs aren't retained by the backing array.
	for i := len(remaining); i < len(r.jobs); i++ {
		r.jobs[i] = Job{}
	}
	r.jobs = remaining
	return reports
}
