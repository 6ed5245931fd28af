package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"tradewatch/internal/storage"
	"tradewatch/internal/trade"
)

const defaultExportWindow = 7 * 24 * time.Hour

// Export renders archived trades as CSV and/or a PNG notional chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListTradesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no trades found for export window")
		return nil
	}

	downsampled := downsampleTrades(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting trades")

	if opts.CSVPath != "" {
		if err := writeTradesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTradesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleTrades(records []storage.TradeRecord, max int) []storage.TradeRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[:1]
	}

	result := make([]storage.TradeRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeTradesCSV(path string, records []storage.TradeRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"detected_at", "tx_hash", "block_number", "side", "exchange", "trader", "notional_usdc", "outcome_count"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.DetectedAt.UTC().Format(time.RFC3339),
			rec.TxHash,
			strconv.FormatInt(rec.BlockNumber, 10),
			rec.Side,
			rec.Exchange,
			rec.Trader,
			rec.Notional.String(),
			strconv.Itoa(rec.OutcomeCount),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// tradeSeries splits records into buy and sell notional series plus the
// running net flow (buys minus sells).
func tradeSeries(records []storage.TradeRecord) (buyX []time.Time, buyY []float64, sellX []time.Time, sellY []float64, netX []time.Time, netY []float64) {
	var net float64
	for _, rec := range records {
		v := rec.Notional.InexactFloat64()
		switch trade.Side(rec.Side) {
		case trade.SideBuy:
			buyX = append(buyX, rec.DetectedAt)
			buyY = append(buyY, v)
			net += v
		case trade.SideSell:
			sellX = append(sellX, rec.DetectedAt)
			sellY = append(sellY, v)
			net -= v
		}
		netX = append(netX, rec.DetectedAt)
		netY = append(netY, net)
	}
	return
}

func writeTradesPNG(path string, records []storage.TradeRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	buyX, buyY, sellX, sellY, netX, netY := tradeSeries(records)
	if len(netX) < 2 {
		return errors.New("at least two trades are needed to render a chart")
	}

	usdcFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Net flow",
			XValues: netX,
			YValues: netY,
			YAxis:   chart.YAxisSecondary,
		},
	}
	// go-chart refuses to render a series with fewer than two points
	if len(buyX) > 1 {
		series = append(series, chart.TimeSeries{Name: "Buy notional", XValues: buyX, YValues: buyY})
	}
	if len(sellX) > 1 {
		series = append(series, chart.TimeSeries{Name: "Sell notional", XValues: sellX, YValues: sellY})
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Notional (USDC)",
			ValueFormatter: usdcFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Net flow (USDC)",
			ValueFormatter: usdcFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
