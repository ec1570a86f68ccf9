package websocket

import (
	"sync"
	"sync/atomic"
)

// sequencer hands out per-symbol message numbers starting at 1.
type sequencer struct {
	m sync.Map // map[string]*atomic.Uint64
}

func newSequencer() *sequencer { return &sequencer{} }

func (s *sequencer) next(symbol string) uint64 {
	v, _ := s.m.LoadOrStore(symbol, new(atomic.Uint64))
	return v.(*atomic.Uint64).Add(1)
}
