// Package service runs the watcher, the viewer hub, the HTTP server and the
// archive pruner as one process.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tradewatch/internal/chain"
)

// Runner is a component that runs until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Watcher streams stablecoin transfer batches.
type Watcher interface {
	Run(ctx context.Context, onBatch chain.BatchFunc) error
}

// BatchHandler consumes transfer batches and can drain in-flight work.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch []chain.TransferEvent)
	Wait()
}

// Components are the parts wired into one process. Watcher and Pruner are optional;
// a Watcher needs a Handler.
type Components struct {
	Watcher Watcher
	Handler BatchHandler
	Hub     Runner
	Server  Runner
	Pruner  Runner
}

// Service orchestrates the long-running components.
type Service struct {
	c      Components
	logger zerolog.Logger
}

// New constructs the service.
func New(c Components, logger zerolog.Logger) *Service {
	return &Service{c: c, logger: logger.With().Str("component", "service").Logger()}
}

// Run starts every component and blocks until ctx is cancelled or one of them fails.
// In-flight trade correlation is drained before returning.
func (s *Service) Run(ctx context.Context) error {
	if s.c.Hub == nil || s.c.Server == nil {
		return fmt.Errorf("hub and server are required")
	}
	if s.c.Watcher != nil && s.c.Handler == nil {
		return fmt.Errorf("watcher configured without a batch handler")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(s.c.Hub.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(s.c.Server.Run(gctx)) })

	if s.c.Watcher == nil {
		s.logger.Error().Msg("chain rpc url not configured; transfer watcher disabled")
	} else {
		g.Go(func() error {
			return ignoreCanceled(s.c.Watcher.Run(gctx, s.c.Handler.HandleBatch))
		})
	}

	if s.c.Pruner != nil {
		g.Go(func() error { return ignoreCanceled(s.c.Pruner.Run(gctx)) })
	}

	err := g.Wait()
	if s.c.Handler != nil {
		s.c.Handler.Wait()
	}
	if err != nil {
		return err
	}
	s.logger.Info().Msg("all components stopped")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
