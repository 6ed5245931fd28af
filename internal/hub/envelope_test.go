package hub

import (
	"encoding/json"
	"testing"
	"time"

	"tradewatch/internal/trade"
)

func TestEnvelopeShapes(t *testing.T) {
	detected := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		name string
		env  Envelope
		want string
	}{
		{"init empty", InitLiveTrades(nil), `{"type":"init_live_trades","trades":[]}`},
		{"heartbeat", Heartbeat(1700000000000), `{"type":"heartbeat","ts":1700000000000}`},
		{"error", Error("unsupported", "nope"), `{"type":"error","code":"unsupported","message":"nope"}`},
		{"notify", Notify("watcher", map[string]string{"state": "restarting"}), `{"type":"notify","topic":"watcher","payload":{"state":"restarting"}}`},
		{"new trade", NewTrade(trade.Trade{
			TxHash: "0x01", Side: trade.SideSell, Trader: "0xaa", Exchange: trade.ExchangeNegRisk,
			Notional: "12.5", Outcomes: []trade.Outcome{}, DetectedAt: detected,
		}), `{"type":"new_trade","trade":{"txHash":"0x01","blockNumber":0,"side":"SELL","trader":"0xaa","exchange":"NegRisk","notional":"12.5","outcomes":[],"outcomeCount":0,"detectedAt":"2025-01-02T03:04:05Z"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.env)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestEnvelopeRejectsIncompleteTags(t *testing.T) {
	if _, err := json.Marshal(Envelope{Type: TypeNewTrade}); err == nil {
		t.Fatal("new_trade without trade should fail")
	}
	if _, err := json.Marshal(Envelope{}); err == nil {
		t.Fatal("untagged envelope should fail")
	}
}
