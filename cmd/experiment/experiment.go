package main

import (
	"context"
	"flag"
	"os"

	"github.com/Yusufzhafir/hftsim/internal/engine"
	"github.com/Yusufzhafir/hftsim/internal/latency"
	"github.com/Yusufzhafir/hftsim/internal/pipeline"
	"github.com/Yusufzhafir/hftsim/internal/usecase/order"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/Yusufzhafir/hftsim/pkg/util"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Runs the reference session: two seeded orders, three ticks, three signals,
// then prints the trade history and the final book.
func main() {
	withLatency := flag.Bool("latency", false, "apply the 100-500µs latency model to each signal")
	seed := flag.Uint64("seed", 1, "latency seed")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := util.NewLogger(*level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	const symbol = "TEST"
	ctx := context.Background()
	book := engine.NewOrderBookEngine(engine.WithSymbol(symbol), engine.WithLogger(logger))
	orders := order.NewOrderUseCase(order.OrderUseCaseOpts{OrderBookEngine: book, Symbol: symbol, Logger: logger})

	var gen latency.Generator = latency.Zero
	if *withLatency {
		u, err := latency.NewUniform(latency.DefaultMin, latency.DefaultMax, *seed)
		if err != nil {
			panic(err)
		}
		gen = u
	}
	sim := pipeline.NewSimulator(pipeline.SimulatorOpts{Book: book, Orders: orders, Latency: gen, Logger: logger})

	if err := sim.Seed(ctx,
		model.NewOrder(101, model.BUY, decimal.NewFromInt(1500), 20),
		model.NewOrder(102, model.SELL, decimal.NewFromInt(1510), 25),
	); err != nil {
		logger.Fatal("seed", zap.Error(err))
	}

	for _, tick := range []model.MarketTick{
		{Timestamp: "2025-11-15 00:30:00", Symbol: symbol, Price: 1500, Volume: 10},
		{Timestamp: "2025-11-15 00:30:05", Symbol: symbol, Price: 1510, Volume: 20},
		{Timestamp: "2025-11-15 00:30:10", Symbol: symbol, Price: 1495, Volume: 15},
	} {
		sim.OnTick(tick)
	}

	for _, sig := range []model.TradeSignal{
		{Signal: model.SignalBuy, Symbol: symbol, Price: 1510, Volume: 5},   // lifts 102
		{Signal: model.SignalSell, Symbol: symbol, Price: 1500, Volume: 10}, // hits 101
		{Signal: model.SignalBuy, Symbol: symbol, Price: 1495, Volume: 8},   // rests
	} {
		trades, err := sim.Submit(ctx, sig)
		if err != nil {
			logger.Error("signal failed", zap.Stringer("signal", sig.Signal), zap.Error(err))
			continue
		}
		logger.Info("signal executed", zap.Stringer("signal", sig.Signal), zap.Int("trades", len(trades)))
	}

	for i, tr := range orders.GetTradeHistory(ctx) {
		logger.Info("trade",
			zap.Int("n", i+1),
			zap.Uint64("buy", uint64(tr.BuyOrderID)),
			zap.Uint64("sell", uint64(tr.SellOrderID)),
			zap.Stringer("price", tr.Price),
			zap.Int64("quantity", int64(tr.Quantity)),
			zap.String("ts", tr.Timestamp),
		)
	}
	logger.Info("final book",
		zap.Any("depth", book.GetMarketDepth(0)),
		zap.Any("market", book.MarketView()),
		zap.Any("stats", sim.Stats()),
	)

	if err := book.CheckInvariants(); err != nil {
		logger.Error("book invariants", zap.Error(err))
		os.Exit(1)
	}
}
