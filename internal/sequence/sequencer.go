package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing ids. Safe for concurrent use.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose first Next() returns first.
func New(first uint64) *Sequencer {
	s := &Sequencer{}
	if first > 0 {
		s.last.Store(first - 1)
	}
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued id, or first-1 before any call to Next.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
