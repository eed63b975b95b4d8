package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JanitorOptions configures the idle session cleanup
type JanitorOptions struct {
	Schedule string        // cron spec, defaults to every 10 minutes
	MaxIdle  time.Duration // sessions idle for longer are deleted, defaults to 24h
	Logger   *zap.Logger
}

// Janitor periodically deletes sessions that have been idle for too long
type Janitor struct {
	store  *Store
	opts   JanitorOptions
	cron   *cron.Cron
	logger *zap.Logger
}

// NewJanitor schedules the cleanup job. Call Start to run it.
func NewJanitor(store *Store, opts JanitorOptions) (*Janitor, error) {
	if opts.Schedule == "" {
		opts.Schedule = "@every 10m"
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Janitor{
		store:  store,
		opts:   opts,
		cron:   cron.New(),
		logger: logger.With(zap.String("component", "session-janitor")),
	}

	if _, err := j.cron.AddFunc(opts.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = j.Sweep(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", opts.Schedule, err)
	}

	return j, nil
}

// Start begins running the cleanup on schedule
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("session janitor started", zap.String("schedule", j.opts.Schedule), zap.Duration("max_idle", j.opts.MaxIdle))
}

// Stop halts the schedule and waits for a running sweep to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep deletes idle sessions once
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	cutoff := j.store.now().Add(-j.opts.MaxIdle)

	n, err := j.store.PurgeIdle(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to purge idle sessions", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		j.logger.Info("purged idle sessions", zap.Int64("count", n))
	}
	return n, nil
}
