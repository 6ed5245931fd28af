package chain_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"tradewatch/internal/chain"
	"tradewatch/internal/chain/chaintest"
)

var (
	usdc     = common.HexToAddress("0x2791bca1f2de4661ed88a30c99a7a9449aa84174")
	shares   = common.HexToAddress("0x4d97dcd97ec945f40cf65f87097ace5ea0476045")
	exCTF    = common.HexToAddress("0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e")
	trader   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	txHash   = common.HexToHash("0x01")
)

func TestDecodeTransfer(t *testing.T) {
	log := chaintest.TransferLog(usdc, trader, exCTF, big.NewInt(1_000_500_000), txHash)
	log.BlockNumber = 42

	ev, err := chain.DecodeTransfer(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.From != trader || ev.To != exCTF {
		t.Fatalf("endpoints = %s -> %s", ev.From.Hex(), ev.To.Hex())
	}
	if ev.Value.Cmp(big.NewInt(1_000_500_000)) != 0 {
		t.Fatalf("value = %s", ev.Value)
	}
	if ev.TxHash != txHash || ev.BlockNumber != 42 {
		t.Fatalf("metadata not carried: %+v", ev)
	}
}

func TestDecodeTransferRejectsWrongShape(t *testing.T) {
	log := chaintest.TransferLog(usdc, trader, exCTF, big.NewInt(1), txHash)
	log.Topics = log.Topics[:2]
	if _, err := chain.DecodeTransfer(log); !errors.Is(err, chain.ErrUnexpectedEvent) {
		t.Fatalf("expected ErrUnexpectedEvent, got %v", err)
	}

	single := chaintest.SingleLog(shares, operator, exCTF, trader, 7, 1)
	if _, err := chain.DecodeTransfer(single); err == nil {
		t.Fatal("ERC-1155 log must not decode as ERC-20 Transfer")
	}

	truncated := chaintest.TransferLog(usdc, trader, exCTF, big.NewInt(1), txHash)
	truncated.Data = truncated.Data[:10]
	if _, err := chain.DecodeTransfer(truncated); err == nil {
		t.Fatal("truncated data must fail")
	}
}

func TestDecodeShareTransferSingle(t *testing.T) {
	st, err := chain.DecodeShareTransfer(chaintest.SingleLog(shares, operator, exCTF, trader, 7, 2_000_000))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Batch || st.Operator != operator || st.From != exCTF || st.To != trader {
		t.Fatalf("unexpected single transfer: %+v", st)
	}
	if len(st.IDs) != 1 || st.IDs[0].Int64() != 7 || st.Values[0].Int64() != 2_000_000 {
		t.Fatalf("id/value = %v/%v", st.IDs, st.Values)
	}
}

func TestDecodeShareTransferBatch(t *testing.T) {
	st, err := chain.DecodeShareTransfer(chaintest.BatchLog(shares, operator, exCTF, trader, []int64{7, 9}, []int64{2_000_000, 500_000}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Batch || len(st.IDs) != 2 || len(st.Values) != 2 {
		t.Fatalf("unexpected batch: %+v", st)
	}
	if st.IDs[1].Int64() != 9 || st.Values[1].Int64() != 500_000 {
		t.Fatalf("second pair = %s/%s", st.IDs[1], st.Values[1])
	}
}

func TestDecodeShareTransferBatchLengthMismatch(t *testing.T) {
	log := chaintest.BatchLog(shares, operator, exCTF, trader, []int64{7, 9}, []int64{1})
	if _, err := chain.DecodeShareTransfer(log); !errors.Is(err, chain.ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestIsShareTransfer(t *testing.T) {
	single := chaintest.SingleLog(shares, operator, exCTF, trader, 7, 1)
	if !chain.IsShareTransfer(single, shares) {
		t.Fatal("single from share token should match")
	}
	if chain.IsShareTransfer(single, usdc) {
		t.Fatal("log from another contract must not match")
	}
	if chain.IsShareTransfer(chaintest.TransferLog(shares, trader, exCTF, big.NewInt(1), txHash), shares) {
		t.Fatal("ERC-20 signature must not match")
	}
}
