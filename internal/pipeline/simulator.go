// Package pipeline runs the market-data and signal streams against one book.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Yusufzhafir/hftsim/internal/engine"
	"github.com/Yusufzhafir/hftsim/internal/ingest"
	"github.com/Yusufzhafir/hftsim/internal/latency"
	"github.com/Yusufzhafir/hftsim/internal/usecase/order"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/Yusufzhafir/hftsim/pkg/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Stats struct {
	TicksApplied    uint64 `json:"ticksApplied"`
	TicksRejected   uint64 `json:"ticksRejected"`
	SignalsExecuted uint64 `json:"signalsExecuted"`
	SignalsIgnored  uint64 `json:"signalsIgnored"`
	SignalsRejected uint64 `json:"signalsRejected"`
	Trades          uint64 `json:"trades"`
}

type Simulator struct {
	book    engine.OrderBookEngine
	orders  order.OrderUseCase
	latency latency.Generator
	clock   util.Clock
	logger  *zap.Logger
	workers int

	ticksApplied    atomic.Uint64
	ticksRejected   atomic.Uint64
	signalsExecuted atomic.Uint64
	signalsIgnored  atomic.Uint64
	signalsRejected atomic.Uint64
	trades          atomic.Uint64
}

type SimulatorOpts struct {
	Book    engine.OrderBookEngine
	Orders  order.OrderUseCase
	Latency latency.Generator // nil means no delay
	Clock   util.Clock
	Logger  *zap.Logger
	Workers int // goroutines draining the signal stream, default 1
}

func NewSimulator(opts SimulatorOpts) *Simulator {
	s := &Simulator{
		book:    opts.Book,
		orders:  opts.Orders,
		latency: opts.Latency,
		clock:   opts.Clock,
		logger:  opts.Logger,
		workers: opts.Workers,
	}
	if s.latency == nil {
		s.latency = latency.Zero
	}
	if s.clock == nil {
		s.clock = util.RealClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.workers < 1 {
		s.workers = 1
	}
	s.logger = s.logger.With(zap.String("component", "simulator"))
	return s
}

// Seed rests orders directly on the book, bypassing latency.
func (s *Simulator) Seed(ctx context.Context, orders ...model.Order) error {
	for _, o := range orders {
		trades, err := s.orders.PlaceOrder(ctx, o)
		if err != nil {
			return err
		}
		s.trades.Add(uint64(len(trades)))
	}
	return nil
}

// Run drives ticks into the book and signals through latency into execution
// until ctx ends or either listener fails.
func (s *Simulator) Run(ctx context.Context, ticks ingest.Listener[model.MarketTick], signals ingest.Listener[model.TradeSignal]) error {
	g, ctx := errgroup.WithContext(ctx)

	if ticks != nil {
		g.Go(func() error {
			return ticks.Listen(ctx, s.OnTick)
		})
	}
	if signals != nil {
		for i := 0; i < s.workers; i++ {
			g.Go(func() error {
				return signals.Listen(ctx, func(sig model.TradeSignal) {
					_, _ = s.Submit(ctx, sig)
				})
			})
		}
	}

	s.logger.Info("simulator running", zap.Int("signalWorkers", s.workers))
	err := g.Wait()
	s.logger.Info("simulator stopped", zap.Any("stats", s.Stats()))
	return err
}

func (s *Simulator) OnTick(tick model.MarketTick) {
	if err := s.book.Update(tick); err != nil {
		s.ticksRejected.Add(1)
		s.logger.Warn("tick rejected", zap.Error(err), zap.String("symbol", tick.Symbol))
		return
	}
	s.ticksApplied.Add(1)
}

// Submit waits out the simulated latency, with no lock held, then executes.
func (s *Simulator) Submit(ctx context.Context, sig model.TradeSignal) ([]model.Trade, error) {
	if sig.Signal == model.SignalNone {
		s.signalsIgnored.Add(1)
		return nil, nil
	}

	delay := s.latency.Delay()
	if err := latency.Sleep(ctx, s.clock, delay); err != nil {
		return nil, err
	}

	trades, err := s.orders.Execute(ctx, sig)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.signalsRejected.Add(1)
			s.logger.Warn("signal rejected", zap.Error(err), zap.Stringer("signal", sig.Signal))
		}
		return nil, err
	}
	s.signalsExecuted.Add(1)
	s.trades.Add(uint64(len(trades)))
	s.logger.Debug("signal done",
		zap.Stringer("signal", sig.Signal),
		zap.Duration("latency", delay),
		zap.Int("trades", len(trades)),
	)
	return trades, nil
}

func (s *Simulator) Stats() Stats {
	return Stats{
		TicksApplied:    s.ticksApplied.Load(),
		TicksRejected:   s.ticksRejected.Load(),
		SignalsExecuted: s.signalsExecuted.Load(),
		SignalsIgnored:  s.signalsIgnored.Load(),
		SignalsRejected: s.signalsRejected.Load(),
		Trades:          s.trades.Load(),
	}
}
