// Package reaper collects background jobs as soon as they exit.
//
// The kernel sends SIGCHLD whenever a child terminates. Signals of the same
// kind aren't queued, so one notification may stand for several exits; every
// notification therefore drains the registry until nothing more can be
// collected. The signal only wakes the reaper goroutine, all collection and
// printing happens there.
package reaper

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/josephlewis42/ensishell/core/jobs"
	"github.com/josephlewis42/ensishell/core/logger"
	"golang.org/x/sys/unix"
)

// State is the state of the reaper.
type State int

const (
	// Idle means no notification is being processed.
	Idle State = iota
	// Draining means exited jobs are being collected.
	Draining
)

func (s State) String() string {
	if s == Draining {
		return "draining"
	}
	return "idle"
}

// Reaper collects exited jobs from a registry and reports them.
type Reaper struct {
	registry *jobs.Registry
	out      io.Writer
	log      *logger.SessionLogger

	notify chan os.Signal

	mu    sync.Mutex
	state State
}

// New creates a reaper that writes a line per collected job to out.
func New(registry *jobs.Registry, out io.Writer, log *logger.SessionLogger) *Reaper {
	return &Reaper{
		registry: registry,
		out:      out,
		log:      log,
		// One slot: further notifications coalesce into the pending one.
		notify: make(chan os.Signal, 1),
	}
}

// Run drains the registry every time a child exits until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	signal.Notify(r.notify, unix.SIGCHLD)
	defer signal.Stop(r.notify)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.notify:
			r.Drain()
		}
	}
}

// Start runs the reaper on a new goroutine and returns a function that stops
// it and waits for it to finish.
func (r *Reaper) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

// Kick asks a running reaper to drain without waiting for a signal. It's used
// after registering a job that may have exited before it was registered.
func (r *Reaper) Kick() {
	select {
	case r.notify <- unix.SIGCHLD:
	default:
		// A drain is already pending.
	}
}

// State returns the current state.
func (r *Reaper) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reaper) setState(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// Drain collects every exited job, reports it and returns the reports.
// Processes that aren't in the registry (foreground pipelines) are never
// waited for here.
func (r *Reaper) Drain() []jobs.Report {
	r.setState(Draining)
	defer r.setState(Idle)

	var all []jobs.Report
	for {
		reports := r.registry.Reap()
		if len(reports) == 0 {
			return all
		}

		for _, report := range reports {
			fmt.Fprintf(r.out, "Process with PID %d exited with status %d after %.2fs\n",
				report.Job.PID, report.Status, report.Elapsed.Seconds())
			r.log.Record(&logger.JobExited{
				Pid:            report.Job.PID,
				Command:        report.Job.Command,
				Status:         report.Status,
				ElapsedSeconds: report.Elapsed.Seconds(),
				Collector:      "reaper",
			})
		}
		all = append(all, reports...)
	}
}
