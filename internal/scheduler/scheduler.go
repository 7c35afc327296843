// Package scheduler runs Jeeves's periodic housekeeping on cron expressions.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultPruneSchedule runs dedup pruning at the top of every hour.
	DefaultPruneSchedule = "0 * * * *"
	// DefaultDedupRetention keeps processed message IDs for a day.
	DefaultDedupRetention = 24 * time.Hour
)

// Pruner deletes processed dedup records older than cutoff.
type Pruner interface {
	PruneProcessedBefore(cutoff time.Time) (int, error)
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	now  func() time.Time
}

// NewScheduler creates and starts a cron scheduler using the 5-field
// (min, hour, dom, month, dow) format. A panicking job is recovered and logged.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c, now: time.Now}
}

// AddJob schedules task under name using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr, name string, task func()) error {
	id, err := s.cron.AddFunc(expr, func() {
		slog.Debug("Scheduler running job", "job", name)
		task()
	})
	if err != nil {
		return fmt.Errorf("schedule %s with %q: %w", name, expr, err)
	}
	slog.Info("Scheduler job added", "job", name, "expr", expr, "entryID", id)
	return nil
}

// SchedulePrune registers the dedup pruning job. A non-positive retention uses
// DefaultDedupRetention and an empty expression uses DefaultPruneSchedule.
func (s *Scheduler) SchedulePrune(expr string, retention time.Duration, p Pruner) error {
	if expr == "" {
		expr = DefaultPruneSchedule
	}
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	return s.AddJob(expr, "dedup-prune", func() { s.prune(retention, p) })
}

func (s *Scheduler) prune(retention time.Duration, p Pruner) {
	cutoff := s.now().Add(-retention)
	n, err := p.PruneProcessedBefore(cutoff)
	if err != nil {
		slog.Error("Scheduler dedup prune failed", "error", err)
		return
	}
	slog.Info("Scheduler pruned dedup records", "removed", n, "cutoff", cutoff)
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
