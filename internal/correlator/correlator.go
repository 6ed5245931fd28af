// Package correlator turns qualifying stablecoin transfers into trades by
// netting the outcome-share transfers found in the same transaction receipt.
package correlator

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"tradewatch/internal/chain"
	"tradewatch/internal/market"
	"tradewatch/internal/trade"
	"tradewatch/internal/units"
)

const defaultMaxInFlight = 16

// Recorder stores detected trades.
type Recorder interface {
	Push(t trade.Trade)
}

// Broadcaster fans a detected trade out to viewers.
type Broadcaster interface {
	BroadcastTrade(t trade.Trade)
}

// Sink is an optional downstream consumer (archive, alerting, message bus).
type Sink interface {
	Name() string
	HandleTrade(ctx context.Context, t trade.Trade) error
}

// Options parameterise the correlator.
type Options struct {
	Contracts   chain.Contracts
	MinNotional *big.Int
	MaxInFlight int64
	Now         func() time.Time
}

// Correlator filters transfers and assembles trades.
type Correlator struct {
	opts      Options
	exchanges trade.Exchanges
	receipts  chain.ReceiptFetcher
	resolver  market.Resolver
	history   Recorder
	hub       Broadcaster
	sinks     []Sink
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	logger    zerolog.Logger
}

// New wires a correlator. Nil sinks are ignored.
func New(opts Options, receipts chain.ReceiptFetcher, resolver market.Resolver, history Recorder, hub Broadcaster, logger zerolog.Logger, sinks ...Sink) *Correlator {
	if opts.MinNotional == nil {
		opts.MinNotional = new(big.Int)
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}

	return &Correlator{
		opts:      opts,
		exchanges: trade.Exchanges{CTF: opts.Contracts.CTF, NegRisk: opts.Contracts.NegRisk},
		receipts:  receipts,
		resolver:  resolver,
		history:   history,
		hub:       hub,
		sinks:     active,
		sem:       semaphore.NewWeighted(opts.MaxInFlight),
		logger:    logger.With().Str("component", "correlator").Logger(),
	}
}

// Qualify reports whether ev touches an exchange and meets the notional threshold (inclusive).
func (c *Correlator) Qualify(ev chain.TransferEvent) (trade.Classification, bool) {
	cls, ok := c.exchanges.Classify(ev.From, ev.To)
	if !ok {
		return trade.Classification{}, false
	}
	if ev.Value == nil || ev.Value.Cmp(c.opts.MinNotional) < 0 {
		return trade.Classification{}, false
	}
	return cls, true
}

// HandleBatch starts correlation for every qualifying transfer and returns without
// waiting; in-flight work is bounded by MaxInFlight.
func (c *Correlator) HandleBatch(ctx context.Context, batch []chain.TransferEvent) {
	for _, ev := range batch {
		cls, ok := c.Qualify(ev)
		if !ok {
			continue
		}

		c.logger.Info().
			Str("notional", units.FromUnits(ev.Value, units.USDCDecimals)).
			Str("dir", cls.Direction.String()).
			Str("exchange", string(cls.Exchange)).
			Str("trader", trade.Short(cls.Trader.Hex())).
			Str("tx", trade.Short(ev.TxHash.Hex())).
			Msg("qualifying transfer")

		c.wg.Add(1)
		go c.process(ctx, ev, cls)
	}
}

// Wait blocks until all in-flight correlations finish.
func (c *Correlator) Wait() {
	c.wg.Wait()
}

func (c *Correlator) process(ctx context.Context, ev chain.TransferEvent, cls trade.Classification) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("tx", ev.TxHash.Hex()).Msg("transfer processing panicked")
		}
	}()

	t, ok := c.correlateGated(ctx, ev, cls)
	if !ok {
		return
	}
	// Delivery runs outside the gate; a slow viewer or sink must not hold a slot.
	c.emit(ctx, t)
}

// correlateGated runs Correlate while holding one in-flight slot.
func (c *Correlator) correlateGated(ctx context.Context, ev chain.TransferEvent, cls trade.Classification) (trade.Trade, bool) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.logger.Debug().Err(err).Str("tx", ev.TxHash.Hex()).Msg("dropped transfer at shutdown")
		return trade.Trade{}, false
	}
	defer c.sem.Release(1)

	t, err := c.Correlate(ctx, ev, cls)
	if err != nil {
		c.logger.Error().Err(err).Str("tx", ev.TxHash.Hex()).Msg("skip transfer")
		return trade.Trade{}, false
	}
	return t, true
}

// Correlate fetches the receipt for ev, nets the trader's share movements and
// assembles the enriched trade.
func (c *Correlator) Correlate(ctx context.Context, ev chain.TransferEvent, cls trade.Classification) (trade.Trade, error) {
	receipt, err := c.receipts.TransactionReceipt(ctx, ev.TxHash)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil {
		return trade.Trade{}, fmt.Errorf("fetch receipt: empty receipt")
	}

	transfers := make([]chain.ShareTransfer, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		if l == nil || !chain.IsShareTransfer(*l, c.opts.Contracts.ShareToken) {
			continue
		}
		st, err := chain.DecodeShareTransfer(*l)
		if err != nil {
			c.logger.Warn().Err(err).Str("tx", ev.TxHash.Hex()).Uint("log_index", l.Index).Msg("drop share transfer")
			continue
		}
		transfers = append(transfers, st)
	}

	net := Net(transfers, cls, c.exchanges)
	outcomes := c.positive(net, ev)

	if err := c.enrich(ctx, outcomes); err != nil {
		return trade.Trade{}, fmt.Errorf("enrich outcomes: %w", err)
	}

	return trade.Trade{
		TxHash:       ev.TxHash.Hex(),
		BlockNumber:  ev.BlockNumber,
		Side:         cls.Direction.Side(),
		Trader:       cls.Trader.Hex(),
		Exchange:     cls.Exchange,
		Notional:     units.FromUnits(ev.Value, units.USDCDecimals),
		Outcomes:     outcomes,
		OutcomeCount: len(outcomes),
		DetectedAt:   c.opts.Now().UTC(),
	}, nil
}

func (c *Correlator) positive(net []TokenAmount, ev chain.TransferEvent) []trade.Outcome {
	outcomes := make([]trade.Outcome, 0, len(net))
	for _, ta := range net {
		switch ta.Amount.Sign() {
		case 1:
			outcomes = append(outcomes, trade.Outcome{
				TokenID:     ta.TokenID,
				ShareAmount: units.FromUnits(ta.Amount, units.USDCDecimals),
			})
		case -1:
			c.logger.Error().Str("token_id", ta.TokenID).Str("amount", ta.Amount.String()).
				Str("tx", ev.TxHash.Hex()).Msg("negative net share amount")
		}
	}
	return outcomes
}

func (c *Correlator) enrich(ctx context.Context, outcomes []trade.Outcome) error {
	if c.resolver == nil {
		for i := range outcomes {
			outcomes[i].Market = market.Fallback
		}
		return nil
	}

	var g errgroup.Group
	for i := range outcomes {
		i := i
		g.Go(func() error {
			outcomes[i].Market = c.resolver.Resolve(ctx, outcomes[i].TokenID)
			return nil
		})
	}
	return g.Wait()
}

func (c *Correlator) emit(ctx context.Context, t trade.Trade) {
	if c.history != nil {
		c.history.Push(t)
	}
	if c.hub != nil {
		c.hub.BroadcastTrade(t)
	}
	for _, s := range c.sinks {
		if err := s.HandleTrade(ctx, t); err != nil {
			c.logger.Error().Err(err).Str("sink", s.Name()).Str("tx", t.TxHash).Msg("sink failed")
		}
	}
}
