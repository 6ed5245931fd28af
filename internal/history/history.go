// Package history keeps the bounded, newest-first list of recently detected trades.
package history

import (
	"sync"

	"tradewatch/internal/trade"
)

// DefaultCapacity matches the snapshot size sent to new viewers.
const DefaultCapacity = 100

// Store is a capped newest-first trade buffer.
type Store struct {
	mu       sync.RWMutex
	trades   []trade.Trade
	capacity int
}

// New returns a store holding at most capacity trades.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, trades: make([]trade.Trade, 0, capacity)}
}

// Push prepends t and evicts the oldest entries beyond capacity.
func (s *Store) Push(t trade.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.trades) < s.capacity {
		s.trades = append(s.trades, trade.Trade{})
	}
	copy(s.trades[1:], s.trades)
	s.trades[0] = t.Clone()
}

// Recent returns an independent newest-first copy.
func (s *Store) Recent() []trade.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]trade.Trade, len(s.trades))
	for i, t := range s.trades {
		out[i] = t.Clone()
	}
	return out
}

// Len reports how many trades are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

// Capacity reports the configured bound.
func (s *Store) Capacity() int {
	return s.capacity
}
