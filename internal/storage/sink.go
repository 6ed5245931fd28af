package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradewatch/internal/trade"
)

// FromTrade converts a detected trade into an archive row.
func FromTrade(t trade.Trade) (TradeRecord, error) {
	notional, err := decimal.NewFromString(t.Notional)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("parse notional %q: %w", t.Notional, err)
	}

	outcomes := t.Outcomes
	if outcomes == nil {
		outcomes = []trade.Outcome{}
	}
	raw, err := json.Marshal(outcomes)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("marshal outcomes: %w", err)
	}

	return TradeRecord{
		TxHash:       t.TxHash,
		BlockNumber:  int64(t.BlockNumber),
		Side:         string(t.Side),
		Trader:       t.Trader,
		Exchange:     string(t.Exchange),
		Notional:     notional,
		OutcomeCount: t.OutcomeCount,
		Outcomes:     raw,
		DetectedAt:   t.DetectedAt.UTC(),
	}, nil
}

// Trade rebuilds the trade carried by an archive row.
func (r TradeRecord) Trade() (trade.Trade, error) {
	outcomes := []trade.Outcome{}
	if len(r.Outcomes) > 0 {
		if err := json.Unmarshal(r.Outcomes, &outcomes); err != nil {
			return trade.Trade{}, fmt.Errorf("decode outcomes for %s: %w", r.TxHash, err)
		}
	}
	return trade.Trade{
		TxHash:       r.TxHash,
		BlockNumber:  uint64(r.BlockNumber),
		Side:         trade.Side(r.Side),
		Trader:       r.Trader,
		Exchange:     trade.Exchange(r.Exchange),
		Notional:     r.Notional.String(),
		Outcomes:     outcomes,
		OutcomeCount: r.OutcomeCount,
		DetectedAt:   r.DetectedAt,
	}, nil
}

// Archiver writes every detected trade to the archive. Nothing reads it back into live history.
type Archiver struct {
	archive TradeArchive
	logger  zerolog.Logger
}

// NewArchiver wraps an archive as a trade sink.
func NewArchiver(archive TradeArchive, logger zerolog.Logger) *Archiver {
	return &Archiver{archive: archive, logger: logger.With().Str("component", "archive").Logger()}
}

// Name implements the correlator sink contract.
func (a *Archiver) Name() string { return "archive" }

// HandleTrade inserts t, ignoring duplicates.
func (a *Archiver) HandleTrade(ctx context.Context, t trade.Trade) error {
	rec, err := FromTrade(t)
	if err != nil {
		return err
	}
	inserted, err := a.archive.InsertTrade(ctx, rec)
	if err != nil {
		return err
	}
	if !inserted {
		a.logger.Debug().Str("tx", t.TxHash).Msg("trade already archived")
	}
	return nil
}
