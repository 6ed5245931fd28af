package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is an archived trade row.
type TradeRecord struct {
	TxHash       string
	BlockNumber  int64
	Side         string
	Trader       string
	Exchange     string
	Notional     decimal.Decimal
	OutcomeCount int
	Outcomes     json.RawMessage
	DetectedAt   time.Time
	CreatedAt    time.Time
}

// AlertRecord captures an emitted large-trade alert for auditing.
type AlertRecord struct {
	ID        int64
	TxHash    string
	Trader    string
	Notional  decimal.Decimal
	Threshold decimal.Decimal
	Side      string
	Channels  []string
	CreatedAt time.Time
}
