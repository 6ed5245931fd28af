package correlator

import (
	"math/big"

	"tradewatch/internal/chain"
	"tradewatch/internal/trade"
)

// TokenAmount is the accumulated share delta for one outcome token.
type TokenAmount struct {
	TokenID string
	Amount  *big.Int
}

// Net sums the share transfers that move between an exchange and the trader in the
// trade's direction, keyed by token id and kept in first-seen order.
func Net(transfers []chain.ShareTransfer, cls trade.Classification, exchanges trade.Exchanges) []TokenAmount {
	index := make(map[string]int)
	var out []TokenAmount

	for _, st := range transfers {
		if !matches(st, cls, exchanges) {
			continue
		}
		for i, id := range st.IDs {
			key := id.String()
			pos, ok := index[key]
			if !ok {
				pos = len(out)
				index[key] = pos
				out = append(out, TokenAmount{TokenID: key, Amount: new(big.Int)})
			}
			out[pos].Amount.Add(out[pos].Amount, st.Values[i])
		}
	}
	return out
}

// matches applies the direction and trader guard once per transfer event.
func matches(st chain.ShareTransfer, cls trade.Classification, exchanges trade.Exchanges) bool {
	if len(st.IDs) != len(st.Values) {
		return false
	}
	switch cls.Direction {
	case trade.DirectionIn:
		return exchanges.Contains(st.From) && st.To == cls.Trader
	case trade.DirectionOut:
		return exchanges.Contains(st.To) && st.From == cls.Trader
	default:
		return false
	}
}
