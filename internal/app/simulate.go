package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradewatch/internal/alerting"
	"tradewatch/internal/trade"
)

// SimulateAlert 构造一笔合成大额成交并走一遍告警流程。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	t, err := syntheticTrade(opts, time.Now().UTC())
	if err != nil {
		return err
	}

	alerter := alerting.NewTradeAlerter(notifier, a.alertThreshold(), []string{"telegram"}, nil, a.Logger)
	if err := alerter.HandleTrade(ctx, t); err != nil {
		return err
	}
	a.Logger.Info().Str("notional", t.Notional).Str("threshold", a.alertThreshold().String()).Msg("simulated alert processed")
	return nil
}

func syntheticTrade(opts SimulateOptions, now time.Time) (trade.Trade, error) {
	if !opts.Notional.IsPositive() {
		return trade.Trade{}, errors.New("notional must be greater than zero")
	}

	var side trade.Side
	switch strings.ToUpper(strings.TrimSpace(opts.Side)) {
	case "", string(trade.SideBuy):
		side = trade.SideBuy
	case string(trade.SideSell):
		side = trade.SideSell
	default:
		return trade.Trade{}, fmt.Errorf("unknown side %q", opts.Side)
	}

	title := opts.Title
	if title == "" {
		title = "Simulated market"
	}

	return trade.Trade{
		TxHash:   "0x" + strings.Repeat("0", 64),
		Side:     side,
		Trader:   "0x" + strings.Repeat("0", 40),
		Exchange: trade.ExchangeCTF,
		Notional: opts.Notional.Truncate(6).String(),
		Outcomes: []trade.Outcome{{
			TokenID:     "0",
			ShareAmount: opts.Notional.Truncate(6).String(),
			Market:      trade.MarketInfo{MarketID: "simulated", Title: title, OutcomeLabel: "Yes"},
		}},
		OutcomeCount: 1,
		DetectedAt:   now,
	}, nil
}
