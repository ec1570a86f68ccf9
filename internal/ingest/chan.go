package ingest

import (
	"context"
	"sync"
)

// ChanSource serves raw frames pushed onto a channel.
type ChanSource struct {
	frames    <-chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewChanSource(frames <-chan []byte) *ChanSource {
	return &ChanSource{frames: frames, closed: make(chan struct{})}
}

func (s *ChanSource) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, ErrClosed
		}
		return f, nil
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ChanSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
