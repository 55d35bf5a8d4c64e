package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crmcore/internal/core"
)

// Observer receives the outcome of every job run.
type Observer interface {
	ObserveJob(job string, success bool, at time.Time)
}

type schedule struct {
	job   Job
	every time.Duration
}

// Runner triggers jobs on fixed intervals. Runs of the same job never
// overlap; different jobs run concurrently.
type Runner struct {
	logger    core.Logger
	observer  Observer
	clock     Clock
	schedules []schedule
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger used for run outcomes.
func WithLogger(l core.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithObserver sets the run outcome observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// WithClock overrides the clock passed to the observer.
func WithClock(c Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// NewRunner returns an empty runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Every schedules job to run each interval.
func (r *Runner) Every(interval time.Duration, job Job) {
	r.schedules = append(r.schedules, schedule{job: job, every: interval})
}

// Jobs returns the scheduled job names in registration order.
func (r *Runner) Jobs() []string {
	out := make([]string, len(r.schedules))
	for i, s := range r.schedules {
		out[i] = s.job.Name()
	}
	return out
}

// Run blocks until ctx is cancelled, triggering each job on its interval.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range r.schedules {
		wg.Add(1)
		go func(s schedule) {
			defer wg.Done()
			ticker := time.NewTicker(s.every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_ = r.execute(ctx, s.job)
				}
			}
		}(s)
	}
	wg.Wait()
}

// RunNow runs the named job once.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	for _, s := range r.schedules {
		if s.job.Name() == name {
			return r.execute(ctx, s.job)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (r *Runner) execute(ctx context.Context, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	if r.observer != nil {
		r.observer.ObserveJob(job.Name(), err == nil, r.clock.now())
	}
	if r.logger != nil {
		if err != nil {
			r.logger.Error("job failed", "job", job.Name(), "error", err.Error())
		} else {
			r.logger.Info("job completed", "job", job.Name(), "duration", time.Since(start))
		}
	}
	return err
}
