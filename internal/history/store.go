package history

import (
	"strings"
	"sync"
)

// Key identifies one maintained series.
type Key struct {
	Symbol    string
	Timeframe Timeframe
}

func NewKey(symbol string, tf Timeframe) Key {
	return Key{Symbol: strings.ToUpper(symbol), Timeframe: tf}
}

// Store keeps the current series per (symbol, timeframe). Series are
// replaced wholesale on regeneration, never patched.
type Store struct {
	mu     sync.RWMutex
	series map[Key]Series
}

func NewStore() *Store {
	return &Store{series: make(map[Key]Series)}
}

func (s *Store) Get(symbol string, tf Timeframe) (Series, bool) {
	s.mu.RLock()
	ser, ok := s.series[NewKey(symbol, tf)]
	s.mu.RUnlock()
	return ser, ok
}

func (s *Store) Put(ser Series) {
	s.mu.Lock()
	s.series[NewKey(ser.Symbol, ser.Timeframe)] = ser
	s.mu.Unlock()
}

func (s *Store) Delete(symbol string, tf Timeframe) {
	s.mu.Lock()
	delete(s.series, NewKey(symbol, tf))
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}
