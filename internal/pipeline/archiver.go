// Package pipeline schedules background maintenance jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// DefaultArchiveCron runs the archive pass once a day, after the evening
// cards have settled.
const DefaultArchiveCron = "30 4 * * *"

// Archiver moves settled bets older than the retention period to cold
// storage.
type Archiver struct {
	archiver  domain.Archiver
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates an Archiver keeping retentionDays of settled bets in
// the ledger.
func NewArchiver(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		archiver:  archiver,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archive_job")),
	}
}

// Run executes one archive pass and returns the number of bets archived.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.now().UTC().Add(-a.retention)
	a.logger.InfoContext(ctx, "starting archive run", slog.Time("cutoff", cutoff))

	n, err := a.archiver.ArchiveBets(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("archiving bets before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("bets_archived", n))
	return n, nil
}

// RunCron runs the archiver on a standard five-field cron schedule (UTC)
// until ctx is cancelled. A failed pass is logged and retried at the next
// trigger.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseSchedule(expr)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", expr))

	for {
		next := sched.Next(a.now().UTC())
		if next.IsZero() {
			return fmt.Errorf("cron expression %q never fires", expr)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// parseSchedule parses a five-field expression or a descriptor such as
// "@daily".
func parseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return sched, nil
}
