// Package jobs runs the periodic ledger sweeps: attendance reminders, the
// 2h last call, completion with after-care documents, six month follow-ups
// and funnel nudges.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Job is one periodic sweep.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner ticks every registered job on its own interval.
type Runner struct {
	jobs    []Job
	locker  *redislock.Client
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewRunner creates an empty runner.
func NewRunner(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{logger: logger}
}

// Add registers jobs.
func (r *Runner) Add(jobs ...Job) *Runner {
	r.jobs = append(r.jobs, jobs...)
	return r
}

// WithLocker makes every tick take a Redis lock first, so only one replica
// runs it.
func (r *Runner) WithLocker(l *redislock.Client) *Runner {
	r.locker = l
	return r
}

// WithMetrics counts sweep outcomes.
func (r *Runner) WithMetrics(m *metrics.BookingMetrics) *Runner {
	r.metrics = m
	return r
}

// Run blocks until ctx is cancelled. Each job runs once right away.
func (r *Runner) Run(ctx context.Context) error {
	for _, job := range r.jobs {
		if job.Interval <= 0 || job.Run == nil {
			return fmt.Errorf("jobs: %q needs an interval and a run func", job.Name)
		}
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range r.jobs {
		g.Go(func() error {
			r.loop(ctx, job)
			return nil
		})
	}
	r.logger.Info("job runner started", "jobs", len(r.jobs), "locks", r.locker != nil)
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	r.Tick(ctx, job)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("job stopped", "job", job.Name)
			return
		case <-ticker.C:
			r.Tick(ctx, job)
		}
	}
}

// Tick runs job once, taking the replica lock when configured.
func (r *Runner) Tick(ctx context.Context, job Job) {
	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, "jobs:"+job.Name, job.Interval, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			r.logger.Debug("job tick held by another replica", "job", job.Name)
			r.metrics.ObserveSweep(job.Name, "skipped")
			return
		}
		if err != nil {
			r.logger.Error("job lock failed", "job", job.Name, "error", err)
			r.metrics.ObserveSweep(job.Name, "lock_error")
			return
		}
		defer func() {
			_ = lock.Release(context.WithoutCancel(ctx))
		}()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("job failed", "job", job.Name, "error", err, "elapsed", time.Since(start).String())
		r.metrics.ObserveSweep(job.Name, "error")
		return
	}
	r.metrics.ObserveSweep(job.Name, "ok")
}
