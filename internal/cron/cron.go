// Package cron runs the gateway's periodic maintenance jobs on cron expressions.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Job is one periodic task.
type Job struct {
	Name string
	Expr string // standard five-field cron expression
	Run  func(ctx context.Context) error
}

// Runner fires jobs when their expressions come due, evaluated in loc.
type Runner struct {
	jobs []Job
	loc  *time.Location
	now  func() time.Time
}

// New validates every job's expression. Jobs with an empty expression are skipped.
func New(loc *time.Location, jobs ...Job) (*Runner, error) {
	if loc == nil {
		loc = time.UTC
	}
	g := gronx.New()
	r := &Runner{loc: loc, now: time.Now}
	for _, j := range jobs {
		if j.Expr == "" {
			slog.Info("cron.disabled", "job", j.Name)
			continue
		}
		if !g.IsValid(j.Expr) {
			return nil, fmt.Errorf("cron job %s: invalid expression %q", j.Name, j.Expr)
		}
		r.jobs = append(r.jobs, j)
	}
	return r, nil
}

// next returns the first tick of expr strictly after from.
func (r *Runner) next(expr string, from time.Time) time.Time {
	t, err := gronx.NextTickAfter(expr, from.In(r.loc), false)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Run blocks until ctx is done, running each job at its next tick. A failing job
// is logged and runs again on its following tick.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.jobs) == 0 {
		<-ctx.Done()
		return nil
	}

	nextAt := make([]time.Time, len(r.jobs))
	now := r.now()
	for i, j := range r.jobs {
		nextAt[i] = r.next(j.Expr, now)
	}

	for {
		var soonest time.Time
		for _, t := range nextAt {
			if !t.IsZero() && (soonest.IsZero() || t.Before(soonest)) {
				soonest = t
			}
		}
		if soonest.IsZero() {
			<-ctx.Done()
			return nil
		}

		timer := time.NewTimer(time.Until(soonest))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		now = r.now()
		for i, j := range r.jobs {
			if nextAt[i].IsZero() || now.Before(nextAt[i]) {
				continue
			}
			r.runJob(ctx, j)
			nextAt[i] = r.next(j.Expr, now)
		}
	}
}

func (r *Runner) runJob(ctx context.Context, j Job) {
	start := r.now()
	if err := j.Run(ctx); err != nil {
		slog.Warn("cron.job_failed", "job", j.Name, "error", err)
		return
	}
	slog.Debug("cron.job_done", "job", j.Name, "duration_ms", time.Since(start).Milliseconds())
}
