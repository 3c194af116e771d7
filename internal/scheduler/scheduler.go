// Package scheduler runs the expired-entry sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner is the part of cache.Store the scheduler drives.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Scheduler calls Cleanup on every tick of a cron schedule. A sweep still
// running when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	cleaner Cleaner
	timeout time.Duration
	log     *zap.Logger
	entry   cron.EntryID
}

// New registers the cleanup job under spec ("@every 10m", "0 3 * * *", ...).
// Each run is bounded by timeout when it is positive.
func New(cleaner Cleaner, spec string, timeout time.Duration, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cronLog := cronLogger{log: log.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		cleaner: cleaner,
		timeout: timeout,
		log:     log,
	}

	id, err := s.cron.AddFunc(spec, func() {
		_, _ = s.RunOnce(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// RunOnce performs a single sweep and logs its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	return Sweep(ctx, s.cleaner, s.timeout, s.log)
}

// Sweep calls cleaner.Cleanup once, bounded by timeout when it is positive.
func Sweep(ctx context.Context, cleaner Cleaner, timeout time.Duration, log *zap.Logger) (int64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	deleted, err := cleaner.Cleanup(ctx)
	if err != nil {
		log.Error("cleanup failed", zap.Int64("deleted", deleted), zap.Error(err))
		return deleted, err
	}
	log.Info("cleanup finished", zap.Int64("deleted", deleted), zap.Duration("took", time.Since(start)))
	return deleted, nil
}

// Next returns the time of the next scheduled sweep; zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Start runs the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule; the returned context is done once a running sweep finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
