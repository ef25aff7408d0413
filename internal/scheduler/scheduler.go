// Package scheduler provides cron-based maintenance scheduling for
// RecruitFlow.
//
// Two periodic jobs run over the CRM side-channel: a daily full resync
// of the current worksheet and a monthly prune of expired history
// partitions.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default maintenance schedules, 5-field cron expressions.
const (
	// DefaultResyncExpr rebuilds the daily CRM worksheet each morning
	// before the sending window opens.
	DefaultResyncExpr = "30 6 * * *"
	// DefaultPruneExpr drops expired history partitions on the first of
	// each month.
	DefaultPruneExpr = "0 4 1 * *"
)

// jobTimeout bounds one maintenance job run.
const jobTimeout = 10 * time.Minute

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler in the given zone.
func NewScheduler(tz *time.Location) *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with
	// panic recovery so one bad job run never kills the loop.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(tz), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// RegisterMaintenance wires the daily resync and monthly prune jobs.
// Either expression may be empty to use the default.
func (s *Scheduler) RegisterMaintenance(resyncExpr, pruneExpr string, resync, prune func(ctx context.Context) error) error {
	if resyncExpr == "" {
		resyncExpr = DefaultResyncExpr
	}
	if pruneExpr == "" {
		pruneExpr = DefaultPruneExpr
	}
	if err := s.AddJob(resyncExpr, wrapJob("crm_resync", resync)); err != nil {
		return err
	}
	if err := s.AddJob(pruneExpr, wrapJob("journal_prune", prune)); err != nil {
		return err
	}
	slog.Info("Scheduler maintenance jobs registered", "resync", resyncExpr, "prune", pruneExpr)
	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func wrapJob(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		slog.Info("Scheduler job starting", "job", name)
		if err := job(ctx); err != nil {
			slog.Error("Scheduler job failed", "job", name, "error", err)
			return
		}
		slog.Info("Scheduler job completed", "job", name)
	}
}
