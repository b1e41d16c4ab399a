package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/trade-ledger/internal/service"
)

// defaultRunTimeout bounds one recompute pass
const defaultRunTimeout = 30 * time.Minute

// Recomputer re-derives stored P&L for closed trades
type Recomputer interface {
	Recompute(ctx context.Context, userID uint) (service.RecomputeResult, error)
}

// RecomputeWorker periodically recomputes the stored P&L of every closed
// trade so corrections to the instrument table reach historical rows
type RecomputeWorker struct {
	ledger   Recomputer
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	log      zerolog.Logger
}

// NewRecomputeWorker creates a worker for a cron schedule with seconds.
// An empty schedule disables it.
func NewRecomputeWorker(ledger Recomputer, schedule string, log zerolog.Logger) *RecomputeWorker {
	return &RecomputeWorker{
		ledger:   ledger,
		schedule: schedule,
		timeout:  defaultRunTimeout,
		log:      log.With().Str("component", "recompute_worker").Logger(),
	}
}

// Start registers the job and starts the scheduler
func (w *RecomputeWorker) Start() error {
	if w.schedule == "" {
		w.log.Info().Msg("recompute worker disabled")
		return nil
	}

	cronLog := w.log
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.PrintfLogger(&cronLog)), cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog))),
	)
	if _, err := c.AddJob(w.schedule, w); err != nil {
		return fmt.Errorf("invalid recompute schedule %q: %w", w.schedule, err)
	}

	w.cron = c
	w.cron.Start()
	w.log.Info().Str("schedule", w.schedule).Msg("recompute worker started")
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish
func (w *RecomputeWorker) Stop() {
	if w.cron == nil {
		return
	}
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.log.Info().Msg("recompute worker stopped")
}

// Run implements cron.Job
func (w *RecomputeWorker) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if _, err := w.RunOnce(ctx); err != nil {
		w.log.Error().Err(err).Msg("recompute failed")
	}
}

// RunOnce recomputes every user's closed trades
func (w *RecomputeWorker) RunOnce(ctx context.Context) (service.RecomputeResult, error) {
	start := time.Now()
	res, err := w.ledger.Recompute(ctx, 0)
	if err != nil {
		return res, err
	}

	w.log.Info().
		Int("scanned", res.Scanned).
		Int("updated", res.Updated).
		Dur("elapsed", time.Since(start)).
		Msg("recompute pass finished")
	return res, nil
}
