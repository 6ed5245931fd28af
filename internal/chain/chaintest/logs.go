// Package chaintest builds raw logs and fake RPC clients for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"tradewatch/internal/chain"
)

var (
	uint256Type, _      = abi.NewType("uint256", "", nil)
	uint256ArrayType, _ = abi.NewType("uint256[]", "", nil)
)

func topic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// TransferLog builds an ERC-20 Transfer log.
func TransferLog(token, from, to common.Address, value *big.Int, tx common.Hash) types.Log {
	data, err := abi.Arguments{{Type: uint256Type}}.Pack(value)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address: token,
		Topics:  []common.Hash{chain.TransferTopic, topic(from), topic(to)},
		Data:    data,
		TxHash:  tx,
	}
}

// SingleLog builds an ERC-1155 TransferSingle log.
func SingleLog(token, operator, from, to common.Address, id, value int64) types.Log {
	data, err := abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}.Pack(big.NewInt(id), big.NewInt(value))
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address: token,
		Topics:  []common.Hash{chain.TransferSingleTopic, topic(operator), topic(from), topic(to)},
		Data:    data,
	}
}

// BatchLog builds an ERC-1155 TransferBatch log. ids and values may differ in length.
func BatchLog(token, operator, from, to common.Address, ids, values []int64) types.Log {
	data, err := abi.Arguments{{Type: uint256ArrayType}, {Type: uint256ArrayType}}.Pack(bigs(ids), bigs(values))
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address: token,
		Topics:  []common.Hash{chain.TransferBatchTopic, topic(operator), topic(from), topic(to)},
		Data:    data,
	}
}

func bigs(in []int64) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, v := range in {
		out[i] = big.NewInt(v)
	}
	return out
}

// Receipts is an in-memory receipt fetcher.
type Receipts struct {
	mu       sync.Mutex
	receipts map[common.Hash]*types.Receipt
	failures map[common.Hash]error
	calls    int
}

// NewReceipts returns an empty fake.
func NewReceipts() *Receipts {
	return &Receipts{receipts: map[common.Hash]*types.Receipt{}, failures: map[common.Hash]error{}}
}

// Add registers the logs emitted by tx.
func (r *Receipts) Add(tx common.Hash, logs ...types.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ptrs := make([]*types.Log, len(logs))
	for i := range logs {
		l := logs[i]
		l.TxHash = tx
		ptrs[i] = &l
	}
	r.receipts[tx] = &types.Receipt{TxHash: tx, Logs: ptrs, Status: types.ReceiptStatusSuccessful}
}

// Fail makes the fetch for tx return err.
func (r *Receipts) Fail(tx common.Hash, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[tx] = err
}

// Calls reports how many fetches were made.
func (r *Receipts) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// TransactionReceipt implements chain.ReceiptFetcher.
func (r *Receipts) TransactionReceipt(ctx context.Context, tx common.Hash) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err, ok := r.failures[tx]; ok {
		return nil, err
	}
	rec, ok := r.receipts[tx]
	if !ok {
		return nil, ethereum.NotFound
	}
	return rec, nil
}

// Subscription is a controllable ethereum.Subscription.
type Subscription struct {
	errc chan error
	once sync.Once
}

// NewSubscription returns a live subscription.
func NewSubscription() *Subscription {
	return &Subscription{errc: make(chan error, 1)}
}

// Fail pushes a delivery error.
func (s *Subscription) Fail(err error) {
	s.errc <- err
}

// Unsubscribe implements ethereum.Subscription; safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { close(s.errc) })
}

// Err implements ethereum.Subscription.
func (s *Subscription) Err() <-chan error {
	return s.errc
}

// LogClient is a scripted chain.LogClient.
type LogClient struct {
	mu        sync.Mutex
	Subscribe func(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	Filter    func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Head      func(ctx context.Context) (uint64, error)
	closed    int
}

// SubscribeFilterLogs implements chain.LogClient.
func (c *LogClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if c.Subscribe == nil {
		return nil, fmt.Errorf("subscribe not scripted")
	}
	return c.Subscribe(ctx, q, ch)
}

// FilterLogs implements chain.LogClient.
func (c *LogClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if c.Filter == nil {
		return nil, fmt.Errorf("filter not scripted")
	}
	return c.Filter(ctx, q)
}

// BlockNumber implements chain.LogClient.
func (c *LogClient) BlockNumber(ctx context.Context) (uint64, error) {
	if c.Head == nil {
		return 0, fmt.Errorf("head not scripted")
	}
	return c.Head(ctx)
}

// Close implements chain.LogClient.
func (c *LogClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

// Closed reports how many times Close was called.
func (c *LogClient) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var (
	_ chain.ReceiptFetcher  = (*Receipts)(nil)
	_ chain.LogClient       = (*LogClient)(nil)
	_ ethereum.Subscription = (*Subscription)(nil)
)
