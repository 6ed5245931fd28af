package trade

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	exCTF   = common.HexToAddress("0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e")
	exNeg   = common.HexToAddress("0xc5d563a36ae78145c45a50134d48a1215220f80a")
	wallet  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	another = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestClassify(t *testing.T) {
	ex := Exchanges{CTF: exCTF, NegRisk: exNeg}

	c, ok := ex.Classify(wallet, exCTF)
	if !ok || c.Direction != DirectionIn || c.Trader != wallet || c.Exchange != ExchangeCTF {
		t.Fatalf("buy into CTF misclassified: %+v ok=%v", c, ok)
	}
	if c.Direction.Side() != SideBuy {
		t.Fatalf("in should be BUY")
	}

	c, ok = ex.Classify(exNeg, wallet)
	if !ok || c.Direction != DirectionOut || c.Trader != wallet || c.Exchange != ExchangeNegRisk {
		t.Fatalf("sell from NegRisk misclassified: %+v ok=%v", c, ok)
	}
	if c.Direction.Side() != SideSell {
		t.Fatalf("out should be SELL")
	}

	if _, ok := ex.Classify(wallet, another); ok {
		t.Fatal("transfer without exchange endpoint must not classify")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := Trade{TxHash: "0x1", Outcomes: []Outcome{{TokenID: "7", ShareAmount: "2"}}, OutcomeCount: 1}
	cp := orig.Clone()
	cp.Outcomes[0].ShareAmount = "9"
	if orig.Outcomes[0].ShareAmount != "2" {
		t.Fatal("clone shares outcome storage with original")
	}
}

func TestShort(t *testing.T) {
	if got := Short("0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e"); got != "0x4bfb…982e" {
		t.Fatalf("Short = %s", got)
	}
	if got := Short("0x1"); got != "0x1" {
		t.Fatalf("Short of short string = %s", got)
	}
}

func TestKeySeparatesTradersInOneTransaction(t *testing.T) {
	a := Trade{TxHash: "0xfeed", Trader: "0x00000000000000000000000000000000000000AA", Side: SideBuy}
	b := Trade{TxHash: "0xfeed", Trader: "0x00000000000000000000000000000000000000BB", Side: SideBuy}
	c := Trade{TxHash: "0xfeed", Trader: "0x00000000000000000000000000000000000000aa", Side: SideBuy}

	if a.Key() == b.Key() {
		t.Fatal("different traders in one tx must have distinct keys")
	}
	if a.Key() != c.Key() {
		t.Fatalf("key should ignore address case: %s vs %s", a.Key(), c.Key())
	}
	if s := (Trade{TxHash: "0xfeed", Trader: a.Trader, Side: SideSell}); s.Key() == a.Key() {
		t.Fatal("sides must have distinct keys")
	}
}
