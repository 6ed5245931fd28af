package history

import (
	"fmt"
	"testing"

	"tradewatch/internal/trade"
)

func tx(i int) trade.Trade {
	return trade.Trade{TxHash: fmt.Sprintf("0x%02d", i), Outcomes: []trade.Outcome{{TokenID: "1", ShareAmount: "1"}}, OutcomeCount: 1}
}

func TestPushIsNewestFirst(t *testing.T) {
	s := New(10)
	for i := 1; i <= 3; i++ {
		s.Push(tx(i))
	}
	got := s.Recent()
	if len(got) != 3 || got[0].TxHash != "0x03" || got[2].TxHash != "0x01" {
		t.Fatalf("order = %v", hashes(got))
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := New(3)
	for i := 1; i <= 4; i++ {
		s.Push(tx(i))
	}
	got := s.Recent()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].TxHash != "0x04" || got[2].TxHash != "0x02" {
		t.Fatalf("after eviction = %v", hashes(got))
	}
	for i := 5; i <= 50; i++ {
		s.Push(tx(i))
		if s.Len() > s.Capacity() {
			t.Fatalf("store exceeded capacity: %d", s.Len())
		}
	}
}

func TestRecentIsIndependentCopy(t *testing.T) {
	s := New(5)
	s.Push(tx(1))

	snap := s.Recent()
	snap[0].TxHash = "mutated"
	snap[0].Outcomes[0].ShareAmount = "999"

	again := s.Recent()
	if again[0].TxHash != "0x01" || again[0].Outcomes[0].ShareAmount != "1" {
		t.Fatalf("snapshot mutation leaked into store: %+v", again[0])
	}
}

func TestDefaultCapacity(t *testing.T) {
	if New(0).Capacity() != DefaultCapacity {
		t.Fatal("non-positive capacity should fall back to default")
	}
}

func hashes(ts []trade.Trade) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.TxHash
	}
	return out
}
