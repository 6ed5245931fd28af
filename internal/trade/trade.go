// Package trade holds the trade record reconstructed from correlated on-chain transfers.
package trade

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Side is the trader's direction relative to the exchange.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Exchange names the settlement contract a trade went through.
type Exchange string

const (
	ExchangeCTF     Exchange = "CTF"
	ExchangeNegRisk Exchange = "NegRisk"
)

// MarketInfo is the market metadata attached to an outcome token.
type MarketInfo struct {
	MarketID     string `json:"marketId"`
	Title        string `json:"title"`
	Image        string `json:"image,omitempty"`
	Slug         string `json:"slug,omitempty"`
	OutcomeLabel string `json:"outcomeLabel"`
}

// Outcome is the net share movement of one outcome token within a trade.
type Outcome struct {
	TokenID     string     `json:"tokenId"`
	ShareAmount string     `json:"shareAmount"`
	Market      MarketInfo `json:"market"`
}

// Trade is a detected large trade.
type Trade struct {
	TxHash       string    `json:"txHash"`
	BlockNumber  uint64    `json:"blockNumber"`
	Side         Side      `json:"side"`
	Trader       string    `json:"trader"`
	Exchange     Exchange  `json:"exchange"`
	Notional     string    `json:"notional"`
	Outcomes     []Outcome `json:"outcomes"`
	OutcomeCount int       `json:"outcomeCount"`
	DetectedAt   time.Time `json:"detectedAt"`
}

// Clone returns a copy that shares no slices with t.
func (t Trade) Clone() Trade {
	out := t
	if t.Outcomes != nil {
		out.Outcomes = make([]Outcome, len(t.Outcomes))
		copy(out.Outcomes, t.Outcomes)
	}
	return out
}

// Key identifies one detection: a trader's stablecoin transfer in one direction
// within a transaction. A single transaction can carry several.
func (t Trade) Key() string {
	return t.TxHash + "/" + strings.ToLower(t.Trader) + "/" + string(t.Side)
}

// Direction of stablecoin flow relative to the exchange.
type Direction int

const (
	// DirectionIn means funds flowed into the exchange (a buy).
	DirectionIn Direction = iota + 1
	// DirectionOut means funds flowed out of the exchange (a sell).
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "unknown"
	}
}

// Side maps the flow direction to a trade side.
func (d Direction) Side() Side {
	if d == DirectionIn {
		return SideBuy
	}
	return SideSell
}

// Exchanges is the pair of known exchange contract addresses.
type Exchanges struct {
	CTF     common.Address
	NegRisk common.Address
}

// Contains reports whether addr is one of the exchanges.
func (e Exchanges) Contains(addr common.Address) bool {
	return addr == e.CTF || addr == e.NegRisk
}

func (e Exchanges) name(addr common.Address) Exchange {
	if addr == e.CTF {
		return ExchangeCTF
	}
	return ExchangeNegRisk
}

// Classification is the side/trader/exchange derived from a stablecoin transfer.
type Classification struct {
	Direction Direction
	Trader    common.Address
	Exchange  Exchange
	Venue     common.Address
}

// Classify derives direction, trader and exchange from a transfer's endpoints.
// ok is false when neither endpoint is an exchange.
func (e Exchanges) Classify(from, to common.Address) (Classification, bool) {
	switch {
	case e.Contains(to):
		return Classification{Direction: DirectionIn, Trader: from, Exchange: e.name(to), Venue: to}, true
	case e.Contains(from):
		return Classification{Direction: DirectionOut, Trader: to, Exchange: e.name(from), Venue: from}, true
	default:
		return Classification{}, false
	}
}

// Short abbreviates a hex string for logs.
func Short(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}
