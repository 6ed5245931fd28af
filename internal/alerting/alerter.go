package alerting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradewatch/internal/storage"
	"tradewatch/internal/trade"
)

// TradeAlerter forwards trades at or above a notional threshold to a notifier.
type TradeAlerter struct {
	notifier  Notifier
	threshold decimal.Decimal
	channels  []string
	audit     storage.AlertStore
	logger    zerolog.Logger
}

// NewTradeAlerter builds the alert sink. audit may be nil.
func NewTradeAlerter(notifier Notifier, threshold decimal.Decimal, channels []string, audit storage.AlertStore, logger zerolog.Logger) *TradeAlerter {
	return &TradeAlerter{
		notifier:  notifier,
		threshold: threshold,
		channels:  channels,
		audit:     audit,
		logger:    logger.With().Str("component", "alerter").Logger(),
	}
}

// Name implements the correlator sink contract.
func (a *TradeAlerter) Name() string { return "alert" }

// HandleTrade notifies when t.Notional >= threshold.
func (a *TradeAlerter) HandleTrade(ctx context.Context, t trade.Trade) error {
	notional, err := decimal.NewFromString(t.Notional)
	if err != nil {
		return fmt.Errorf("parse notional %q: %w", t.Notional, err)
	}
	if notional.LessThan(a.threshold) {
		return nil
	}

	if a.audit != nil {
		rec := storage.AlertRecord{
			TxHash:    t.TxHash,
			Trader:    t.Trader,
			Notional:  notional,
			Threshold: a.threshold,
			Side:      string(t.Side),
			Channels:  a.channels,
		}
		if _, err := a.audit.InsertAlert(ctx, rec); err != nil {
			a.logger.Error().Err(err).Str("tx", t.TxHash).Msg("failed to persist alert record")
		}
	}

	note := Notification{Trade: t, Threshold: a.threshold, Channels: a.channels}
	if err := a.notifier.Notify(ctx, note); err != nil {
		return fmt.Errorf("dispatch alert: %w", err)
	}
	return nil
}
