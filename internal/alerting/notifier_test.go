package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradewatch/internal/storage"
	"tradewatch/internal/trade"
)

func sampleTrade(notional string) trade.Trade {
	return trade.Trade{
		TxHash:      "0xfeed",
		BlockNumber: 12,
		Side:        trade.SideSell,
		Trader:      "0x00000000000000000000000000000000000000A1",
		Exchange:    trade.ExchangeNegRisk,
		Notional:    notional,
		Outcomes: []trade.Outcome{{
			TokenID:     "9",
			ShareAmount: "0.5",
			Market:      trade.MarketInfo{MarketID: "m9", Title: "Election winner", OutcomeLabel: "No"},
		}},
		OutcomeCount: 1,
		DetectedAt:   time.Now(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{Trade: sampleTrade("25000"), Threshold: decimal.NewFromInt(10000)}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	text, _ := received["text"].(string)
	if !strings.Contains(text, "25000 USDC") || !strings.Contains(text, "Election winner") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Trade: sampleTrade("1")}); err == nil {
		t.Fatal("ok=false should fail")
	}
}

type recordingNotifier struct {
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, note Notification) error {
	r.notes = append(r.notes, note)
	return r.err
}

type recordingAudit struct {
	records []storage.AlertRecord
}

func (r *recordingAudit) InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	r.records = append(r.records, alert)
	return alert, nil
}

func (r *recordingAudit) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	return r.records, nil
}

func (r *recordingAudit) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	return nil
}

func TestTradeAlerterThreshold(t *testing.T) {
	notifier := &recordingNotifier{}
	audit := &recordingAudit{}
	alerter := NewTradeAlerter(notifier, decimal.NewFromInt(10000), []string{"telegram"}, audit, testLogger())

	for _, notional := range []string{"9999.999999", "10000", "12500.25"} {
		if err := alerter.HandleTrade(context.Background(), sampleTrade(notional)); err != nil {
			t.Fatalf("handle %s: %v", notional, err)
		}
	}

	if len(notifier.notes) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(notifier.notes))
	}
	if notifier.notes[0].Trade.Notional != "10000" {
		t.Fatalf("threshold should be inclusive, first alert %s", notifier.notes[0].Trade.Notional)
	}
	if len(audit.records) != 2 || audit.records[0].Side != "SELL" {
		t.Fatalf("unexpected audit records %+v", audit.records)
	}
	if audit.records[0].Trader != "0x00000000000000000000000000000000000000A1" {
		t.Fatalf("audit should record the trader, got %q", audit.records[0].Trader)
	}
}

func TestTradeAlerterSurfacesNotifierError(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	alerter := NewTradeAlerter(notifier, decimal.Zero, nil, nil, testLogger())
	if err := alerter.HandleTrade(context.Background(), sampleTrade("1")); err == nil {
		t.Fatal("expected notifier error")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
