// internal/app/system/tasks/runner.go
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dalemusser/stratalog/internal/app/system/timeouts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// ErrUnknownJob is returned by RunOnce for a name that was never registered.
var ErrUnknownJob = errors.New("tasks: unknown job")

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratalog_job_runs_total",
		Help: "Background job executions by job and result.",
	}, []string{"job", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratalog_job_duration_seconds",
		Help:    "Background job execution time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

// Job represents a scheduled background task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner manages background job execution.
type Runner struct {
	logger   *zap.Logger
	jobs     []Job
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	running  atomic.Int32
	jobNames sync.Map // jobs currently executing
}

// New creates a new task runner.
func New(logger *zap.Logger) *Runner {
	return &Runner{
		logger: logger,
	}
}

// Register adds a job to the runner. Jobs with a non-positive interval are
// skipped.
func (r *Runner) Register(job Job) {
	if job.Interval <= 0 {
		r.logger.Info("job disabled", zap.String("job", job.Name))
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the names of the registered jobs.
func (r *Runner) Jobs() []string {
	names := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		names[i] = j.Name
	}
	return names
}

// Start begins executing all registered jobs.
// Call Stop to gracefully shutdown.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.runJob(ctx, job)
	}

	r.logger.Info("background task runner started",
		zap.Strings("jobs", r.Jobs()))
}

// Stop cancels all jobs and waits for them within ctx's deadline.
// If ctx ends first, it returns ctx.Err().
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("background task runner stopped gracefully")
		return nil
	case <-ctx.Done():
		var stillRunning []string
		r.jobNames.Range(func(key, _ any) bool {
			stillRunning = append(stillRunning, key.(string))
			return true
		})
		r.logger.Warn("background task runner shutdown timed out",
			zap.Strings("jobs_still_running", stillRunning),
			zap.Int32("running_count", r.running.Load()))
		return ctx.Err()
	}
}

// runJob executes a job immediately and then on its interval.
func (r *Runner) runJob(ctx context.Context, job Job) {
	defer r.wg.Done()

	r.executeJob(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			r.executeJob(ctx, job)
		}
	}
}

// executeJob runs a job, recovering a panic into an error, and records
// the outcome.
func (r *Runner) executeJob(ctx context.Context, job Job) {
	r.running.Add(1)
	r.jobNames.Store(job.Name, struct{}{})
	defer func() {
		r.running.Add(-1)
		r.jobNames.Delete(job.Name)
	}()

	jobCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), r.logger, job.Name)
	defer cancel()

	start := time.Now()
	err := safeRun(jobCtx, job)
	elapsed := time.Since(start)
	jobDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())

	switch {
	case err == nil:
		jobRuns.WithLabelValues(job.Name, "ok").Inc()
		r.logger.Debug("job completed",
			zap.String("job", job.Name),
			zap.Duration("duration", elapsed))
	case ctx.Err() != nil:
		jobRuns.WithLabelValues(job.Name, "cancelled").Inc()
		r.logger.Debug("job cancelled during shutdown",
			zap.String("job", job.Name),
			zap.Duration("duration", elapsed))
	default:
		jobRuns.WithLabelValues(job.Name, "error").Inc()
		r.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	}
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, p)
		}
	}()
	return job.Run(ctx)
}

// RunOnce executes a registered job immediately, outside its schedule.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			return safeRun(ctx, job)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}
