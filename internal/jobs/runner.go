// Package jobs runs the periodic work that sits around the core services.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Spok95/tutorcenter/internal/ctxutil"
	"github.com/Spok95/tutorcenter/internal/logging"
	"github.com/Spok95/tutorcenter/internal/observability"
)

type Job func(ctx context.Context) error

// Runner owns every job goroutine; they all stop when ctx is cancelled.
type Runner struct {
	ctx  context.Context
	log  *zap.Logger
	loc  *time.Location
	wg   sync.WaitGroup
	mu   sync.Mutex
	cron *cron.Cron
}

func New(ctx context.Context, loc *time.Location, log *zap.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	return &Runner{ctx: ctx, loc: loc, log: logging.Named(log, "jobs")}
}

// Every runs fn on a fixed interval until the runner's context ends.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				_ = r.Run(name, fn)
			}
		}
	}()
}

// Cron runs fn on a standard five-field cron spec in the runner's location.
func (r *Runner) Cron(spec, name string, fn Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		r.cron = cron.New(cron.WithLocation(r.loc))
		r.cron.Start()
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			<-r.ctx.Done()
			<-r.cron.Stop().Done()
		}()
	}
	if _, err := r.cron.AddFunc(spec, func() { _ = r.Run(name, fn) }); err != nil {
		return fmt.Errorf("job %s: bad cron spec %q: %w", name, spec, err)
	}
	r.log.Info("cron job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Run executes fn once with metrics, logging and panic capture.
func (r *Runner) Run(name string, fn Job) (err error) {
	ctx := ctxutil.WithOp(r.ctx, "job."+name)
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in job %s: %v", name, p)
		}
		jobRuns.WithLabelValues(name).Inc()
		jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err == nil {
			jobLastSuccess.WithLabelValues(name).SetToCurrentTime()
			return
		}
		jobErrors.WithLabelValues(name).Inc()
		observability.CaptureCtx(ctx, err)
		logging.FromContext(ctx, r.log).Error("job failed", zap.String("job", name), zap.Error(err))
	}()
	return fn(ctx)
}

// Wait blocks until every job goroutine has exited.
func (r *Runner) Wait() { r.wg.Wait() }
