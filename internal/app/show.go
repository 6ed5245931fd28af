package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"tradewatch/internal/storage"
	"tradewatch/internal/trade"
)

// Show prints the most recently archived trades.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show trades")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentTrades(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return writeTradeTable(os.Stdout, filterBySide(records, opts.Side))
}

func filterBySide(records []storage.TradeRecord, side trade.Side) []storage.TradeRecord {
	if side == "" {
		return records
	}
	out := records[:0:0]
	for _, rec := range records {
		if trade.Side(rec.Side) == side {
			out = append(out, rec)
		}
	}
	return out
}

func writeTradeTable(out io.Writer, records []storage.TradeRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "no trades found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Detected (UTC)\tSide\tNotional\tExchange\tTrader\tOutcomes\tTx")

	for _, rec := range records {
		t, err := rec.Trade()
		if err != nil {
			return err
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.DetectedAt.UTC().Format(time.RFC3339),
			t.Side,
			rec.Notional.StringFixed(2),
			t.Exchange,
			trade.Short(t.Trader),
			describeOutcomes(t.Outcomes),
			t.TxHash,
		)
	}

	return writer.Flush()
}

func describeOutcomes(outcomes []trade.Outcome) string {
	if len(outcomes) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("%s x %s (%s)", o.ShareAmount, sanitizeInline(o.Market.Title), o.Market.OutcomeLabel))
	}
	return strings.Join(parts, "; ")
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
