// Package ingest turns raw market-data and signal frames into typed messages
// and delivers them to a handler.
package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/Yusufzhafir/hftsim/pkg/util"
	"go.uber.org/zap"
)

// ErrClosed is returned by a source or listener after Close.
var ErrClosed = errors.New("ingest: closed")

const maxLoggedPayload = 256

type Handler[T any] func(T)

// Listener delivers decoded messages either one at a time or to a handler.
type Listener[T any] interface {
	// ReceiveOne blocks until a message decodes, ctx ends or the listener closes.
	ReceiveOne(ctx context.Context) (T, error)
	// Listen calls handler once per message until ctx ends or the listener
	// closes, in which case it returns nil.
	Listen(ctx context.Context, handler Handler[T]) error
	Close() error
}

// FrameSource yields raw payloads from a transport.
type FrameSource interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

type Decoder[T any] func(raw []byte) (T, error)

// Receiver decodes frames from a FrameSource. Frames that fail to decode are
// logged and dropped.
type Receiver[T any] struct {
	source FrameSource
	decode Decoder[T]
	logger *zap.Logger

	received atomic.Uint64
	dropped  atomic.Uint64
}

func NewReceiver[T any](name string, source FrameSource, decode Decoder[T], logger *zap.Logger) *Receiver[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver[T]{
		source: source,
		decode: decode,
		logger: logger.With(zap.String("component", "ingest"), zap.String("stream", name)),
	}
}

func NewTickReceiver(source FrameSource, clock util.Clock, logger *zap.Logger) *Receiver[model.MarketTick] {
	return NewReceiver("market", source, NewTickDecoder(clock), logger)
}

func NewSignalReceiver(source FrameSource, logger *zap.Logger) *Receiver[model.TradeSignal] {
	return NewReceiver("signal", source, DecodeSignal, logger)
}

func (r *Receiver[T]) ReceiveOne(ctx context.Context) (T, error) {
	var zero T
	for {
		raw, err := r.source.ReadFrame(ctx)
		if err != nil {
			return zero, err
		}
		msg, err := r.decode(raw)
		if err != nil {
			r.dropped.Add(1)
			if len(raw) > maxLoggedPayload {
				raw = raw[:maxLoggedPayload]
			}
			r.logger.Warn("dropping malformed message", zap.Error(err), zap.ByteString("payload", raw))
			continue
		}
		r.received.Add(1)
		return msg, nil
	}
}

func (r *Receiver[T]) Listen(ctx context.Context, handler Handler[T]) error {
	return listen(ctx, r, handler)
}

func (r *Receiver[T]) Close() error { return r.source.Close() }

// Stats reports decoded and dropped frame counts.
func (r *Receiver[T]) Stats() (received, dropped uint64) {
	return r.received.Load(), r.dropped.Load()
}

func listen[T any](ctx context.Context, l Listener[T], handler Handler[T]) error {
	for {
		msg, err := l.ReceiveOne(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		handler(msg)
	}
}

// Subscription is a running Listen call with an explicit stop.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Subscribe runs l.Listen(handler) in its own goroutine until Stop or ctx ends.
func Subscribe[T any](ctx context.Context, l Listener[T], handler Handler[T]) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		s.err = l.Listen(ctx, handler)
	}()
	return s
}

// Stop cancels the subscription and waits until the handler can no longer run.
func (s *Subscription) Stop() error {
	s.cancel()
	<-s.done
	return s.err
}

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is the transport error that ended the subscription, if any.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// ChanListener delivers already typed messages from a channel. Used to wire
// in-process producers and tests.
type ChanListener[T any] struct {
	ch        <-chan T
	closed    chan struct{}
	closeOnce sync.Once
}

func NewChanListener[T any](ch <-chan T) *ChanListener[T] {
	return &ChanListener[T]{ch: ch, closed: make(chan struct{})}
}

func (c *ChanListener[T]) ReceiveOne(ctx context.Context) (T, error) {
	var zero T
	select {
	case msg, ok := <-c.ch:
		if !ok {
			return zero, ErrClosed
		}
		return msg, nil
	case <-c.closed:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *ChanListener[T]) Listen(ctx context.Context, handler Handler[T]) error {
	return listen(ctx, c, handler)
}

func (c *ChanListener[T]) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
