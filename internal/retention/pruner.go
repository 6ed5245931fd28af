// Package retention prunes archived trades on a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tradewatch/internal/storage"
)

// Options configure the pruner.
type Options struct {
	Schedule  string
	Retention time.Duration
	LockKey   int64
	Now       func() time.Time
}

// Pruner deletes archive rows older than the retention window.
type Pruner struct {
	opts    Options
	archive storage.TradeArchive
	alerts  storage.AlertStore
	locker  storage.AdvisoryLocker
	logger  zerolog.Logger
}

// New builds a pruner. alerts and locker are picked up from archive when it implements them.
func New(opts Options, archive storage.TradeArchive, logger zerolog.Logger) *Pruner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Pruner{
		opts:    opts,
		archive: archive,
		logger:  logger.With().Str("component", "retention").Logger(),
	}
	if a, ok := archive.(storage.AlertStore); ok {
		p.alerts = a
	}
	if l, ok := archive.(storage.AdvisoryLocker); ok && opts.LockKey != 0 {
		p.locker = l
	}
	return p
}

// Run schedules pruning and blocks until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	if p.opts.Retention <= 0 {
		p.logger.Info().Msg("archive retention disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithLogger(cronLogger{p.logger}), cron.WithChain(cron.Recover(cronLogger{p.logger})))
	if _, err := c.AddFunc(p.opts.Schedule, func() {
		if _, err := p.PruneOnce(ctx); err != nil {
			p.logger.Error().Err(err).Msg("archive prune failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule prune %q: %w", p.opts.Schedule, err)
	}

	p.logger.Info().Str("schedule", p.opts.Schedule).Dur("retention", p.opts.Retention).Msg("scheduled archive prune")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// PruneOnce deletes rows older than now minus retention. It skips quietly when
// another instance holds the advisory lock.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	if p.archive == nil {
		return 0, storage.ErrNotConfigured
	}

	if p.locker != nil {
		unlock, acquired, err := p.locker.TryAdvisoryLock(ctx, p.opts.LockKey)
		if err != nil {
			return 0, fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			p.logger.Debug().Msg("skip prune because advisory lock held elsewhere")
			return 0, nil
		}
		defer unlock()
	}

	cutoff := p.opts.Now().UTC().Add(-p.opts.Retention)
	deleted, err := p.archive.DeleteTradesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if p.alerts != nil {
		if alertErr := p.alerts.DeleteAlertsBefore(ctx, cutoff); alertErr != nil {
			err = errors.Join(err, alertErr)
		}
	}

	p.logger.Info().Time("cutoff", cutoff).Int64("deleted", deleted).Msg("archive pruned")
	return deleted, err
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
