package hub

import (
	"encoding/json"
	"fmt"

	"tradewatch/internal/trade"
)

// MessageType tags a server envelope.
type MessageType string

const (
	TypeInitLiveTrades MessageType = "init_live_trades"
	TypeNewTrade       MessageType = "new_trade"
	TypeHeartbeat      MessageType = "heartbeat"
	TypeError          MessageType = "error"
	TypeNotify         MessageType = "notify"
)

// Envelope is a tagged server message. Only the fields belonging to Type are encoded.
type Envelope struct {
	Type    MessageType
	Trades  []trade.Trade
	Trade   *trade.Trade
	TS      int64
	Code    string
	Message string
	Topic   string
	Payload any
}

// InitLiveTrades carries the recent trade snapshot sent once per connection.
func InitLiveTrades(trades []trade.Trade) Envelope {
	if trades == nil {
		trades = []trade.Trade{}
	}
	return Envelope{Type: TypeInitLiveTrades, Trades: trades}
}

// NewTrade announces a freshly detected trade.
func NewTrade(t trade.Trade) Envelope {
	return Envelope{Type: TypeNewTrade, Trade: &t}
}

// Heartbeat carries a unix millisecond timestamp.
func Heartbeat(ts int64) Envelope {
	return Envelope{Type: TypeHeartbeat, TS: ts}
}

// Error reports a problem to a viewer.
func Error(code, message string) Envelope {
	return Envelope{Type: TypeError, Code: code, Message: message}
}

// Notify carries an arbitrary topic payload.
func Notify(topic string, payload any) Envelope {
	return Envelope{Type: TypeNotify, Topic: topic, Payload: payload}
}

// MarshalJSON encodes exactly the payload of the active tag.
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeInitLiveTrades:
		trades := e.Trades
		if trades == nil {
			trades = []trade.Trade{}
		}
		return json.Marshal(struct {
			Type   MessageType   `json:"type"`
			Trades []trade.Trade `json:"trades"`
		}{e.Type, trades})
	case TypeNewTrade:
		if e.Trade == nil {
			return nil, fmt.Errorf("new_trade envelope without trade")
		}
		return json.Marshal(struct {
			Type  MessageType `json:"type"`
			Trade trade.Trade `json:"trade"`
		}{e.Type, *e.Trade})
	case TypeHeartbeat:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			TS   int64       `json:"ts"`
		}{e.Type, e.TS})
	case TypeError:
		return json.Marshal(struct {
			Type    MessageType `json:"type"`
			Code    string      `json:"code"`
			Message string      `json:"message"`
		}{e.Type, e.Code, e.Message})
	case TypeNotify:
		return json.Marshal(struct {
			Type    MessageType `json:"type"`
			Topic   string      `json:"topic"`
			Payload any         `json:"payload"`
		}{e.Type, e.Topic, e.Payload})
	default:
		return nil, fmt.Errorf("unknown envelope type %q", e.Type)
	}
}
