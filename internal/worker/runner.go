// Package worker schedules the recurring data refresh jobs: rule, value
// set, booster rule and country sync, trust list refresh, and the booster
// recompute pass.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one recurring task. Run is invoked once at startup and then on
// every interval tick until the context ends.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Recorder receives the outcome of every job run, for metrics.
type Recorder interface {
	ObserveJob(name string, duration time.Duration, err error)
}

// Runner drives all registered jobs concurrently. Job failures are logged
// and recorded but never stop the loop; stale data beats no service.
type Runner struct {
	jobs     []Job
	logger   *slog.Logger
	recorder Recorder
}

type RunnerOption func(*Runner)

func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

func WithRecorder(recorder Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = recorder }
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a job. Must be called before Run.
func (r *Runner) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Run blocks until the context is cancelled. Each job gets its own loop so
// a slow sync cannot delay the others.
func (r *Runner) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, job := range r.jobs {
		group.Go(func() error {
			r.loop(ctx, job)
			return nil
		})
	}
	return group.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	r.runOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, job)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	if r.recorder != nil {
		r.recorder.ObserveJob(job.Name, elapsed, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.WarnContext(ctx, "background job failed",
			"job", job.Name,
			"duration", elapsed,
			"error", err,
		)
		return
	}
	r.logger.DebugContext(ctx, "background job finished",
		"job", job.Name,
		"duration", elapsed,
	)
}
