package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Yusufzhafir/hftsim/internal/config"
	"github.com/Yusufzhafir/hftsim/internal/engine"
	"github.com/Yusufzhafir/hftsim/internal/ingest"
	"github.com/Yusufzhafir/hftsim/internal/latency"
	"github.com/Yusufzhafir/hftsim/internal/pipeline"
	"github.com/Yusufzhafir/hftsim/internal/publish"
	"github.com/Yusufzhafir/hftsim/internal/router"
	"github.com/Yusufzhafir/hftsim/internal/router/middleware"
	"github.com/Yusufzhafir/hftsim/internal/usecase/order"
	"github.com/Yusufzhafir/hftsim/internal/websocket"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/Yusufzhafir/hftsim/pkg/util"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Error("simulator exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.File != "" {
		return util.NewLoggerWithFile(cfg.Level, cfg.File)
	}
	return util.NewLogger(cfg.Level)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	book := engine.NewOrderBookEngine(
		engine.WithSymbol(cfg.Engine.Symbol),
		engine.WithLogger(logger),
		engine.WithStrictInvariants(cfg.Engine.Strict),
	)
	orderUseCase := order.NewOrderUseCase(order.OrderUseCaseOpts{
		OrderBookEngine: book,
		Symbol:          cfg.Engine.Symbol,
		FirstOrderID:    cfg.Engine.FirstOrderID,
		Logger:          logger,
	})
	lat, err := latency.NewUniform(cfg.Latency.Min(), cfg.Latency.Max(), cfg.Latency.Seed)
	if err != nil {
		return err
	}
	sim := pipeline.NewSimulator(pipeline.SimulatorOpts{
		Book:    book,
		Orders:  orderUseCase,
		Latency: lat,
		Logger:  logger,
		Workers: cfg.Ingest.SignalWorkers,
	})

	if cfg.Engine.SeedDemo {
		if err := sim.Seed(ctx,
			model.NewOrder(101, model.BUY, decimal.NewFromInt(1500), 20),
			model.NewOrder(102, model.SELL, decimal.NewFromInt(1510), 25),
		); err != nil {
			return fmt.Errorf("seed book: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := websocket.NewHub(logger)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	bookPush := newBookPusher(hub, orderUseCase, time.Duration(cfg.HTTP.BookPublishMillis)*time.Millisecond)
	orderUseCase.RegisterTradeHandler(func(tr model.Trade) {
		hub.PublishTrade(cfg.Engine.Symbol, tr)
	})
	orderUseCase.RegisterBookHandler(bookPush.markDirty)
	g.Go(func() error {
		bookPush.run(ctx)
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := publish.NewKafkaPublisher(publish.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, cfg.Engine.Symbol, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		orderUseCase.RegisterTradeHandler(pub.Publish)
		g.Go(func() error { return pub.Run(ctx) })
		logger.Info("exporting trades to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Stringer("runId", pub.RunID()))
	}

	var ticks ingest.Listener[model.MarketTick]
	if cfg.Ingest.MarketAddr != "" {
		src, err := ingest.ListenUDP(cfg.Ingest.MarketAddr)
		if err != nil {
			return fmt.Errorf("market feed: %w", err)
		}
		r := ingest.NewTickReceiver(src, util.RealClock{}, logger)
		defer r.Close()
		ticks = r
		logger.Info("market feed listening", zap.Stringer("addr", src.Addr()))
	}
	var signals ingest.Listener[model.TradeSignal]
	if cfg.Ingest.SignalAddr != "" {
		src, err := ingest.ListenUDP(cfg.Ingest.SignalAddr)
		if err != nil {
			return fmt.Errorf("signal feed: %w", err)
		}
		r := ingest.NewSignalReceiver(src, logger)
		defer r.Close()
		signals = r
		logger.Info("signal feed listening", zap.Stringer("addr", src.Addr()))
	}
	g.Go(func() error { return sim.Run(ctx, ticks, signals) })

	if cfg.Ingest.MarketWebSocketURL != "" {
		var subscribe []byte
		if cfg.Ingest.MarketWSSubscribe != "" {
			subscribe = []byte(cfg.Ingest.MarketWSSubscribe)
		}
		src, err := ingest.DialWebSocket(ctx, cfg.Ingest.MarketWebSocketURL, subscribe)
		if err != nil {
			return fmt.Errorf("websocket market feed: %w", err)
		}
		r := ingest.NewTickReceiver(src, util.RealClock{}, logger)
		defer r.Close()
		g.Go(func() error { return r.Listen(ctx, sim.OnTick) })
		logger.Info("websocket market feed connected", zap.String("url", cfg.Ingest.MarketWebSocketURL))
	}

	if cfg.Ingest.RedisAddr != "" {
		rdb, err := ingest.NewRedisClient(ctx, ingest.RedisConfig{
			Addr:     cfg.Ingest.RedisAddr,
			Password: cfg.Ingest.RedisPassword,
			DB:       cfg.Ingest.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		src, err := ingest.SubscribeRedis(ctx, rdb, cfg.Ingest.RedisChannel)
		if err != nil {
			return fmt.Errorf("redis signals: %w", err)
		}
		r := ingest.NewSignalReceiver(src, logger)
		defer r.Close()
		g.Go(func() error {
			return r.Listen(ctx, func(sig model.TradeSignal) { _, _ = sim.Submit(ctx, sig) })
		})
		logger.Info("redis signal channel subscribed", zap.String("channel", cfg.Ingest.RedisChannel))
	}

	var tokenMaker *middleware.JWTMaker
	if cfg.HTTP.JWTSecret != "" {
		tokenMaker = middleware.NewJWTMaker(cfg.HTTP.JWTSecret)
	}
	serveMux := http.NewServeMux()
	router.BindRouter(router.BindRouterOpts{
		ServerRouter: serveMux,
		OrderUseCase: orderUseCase,
		Signals:      sim,
		TokenMaker:   tokenMaker,
		Hub:          hub,
		Logger:       logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router.Cors(serveMux, cfg.HTTP.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr), zap.Bool("auth", tokenMaker != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		// in-flight requests get up to 10s
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed, forcing close", zap.Error(err))
			_ = server.Close()
		}
		return nil
	})

	err = g.Wait()

	history := orderUseCase.GetTradeHistory(context.Background())
	logger.Info("trade history", zap.Int("count", len(history)), zap.Any("trades", history))
	logger.Info("simulator stopped", zap.Any("stats", sim.Stats()), zap.Int("resting", book.OrderSize()))
	return err
}

// bookPusher sends depth snapshots to websocket clients after book changes,
// at most once per interval.
type bookPusher struct {
	hub      *websocket.Hub
	orders   order.OrderUseCase
	interval time.Duration
	dirty    atomic.Bool
	wake     chan struct{}
}

func newBookPusher(hub *websocket.Hub, orders order.OrderUseCase, interval time.Duration) *bookPusher {
	return &bookPusher{hub: hub, orders: orders, interval: interval, wake: make(chan struct{}, 1)}
}

func (b *bookPusher) markDirty() {
	b.dirty.Store(true)
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *bookPusher) run(ctx context.Context) {
	for {
		select {
		case <-b.wake:
		case <-ctx.Done():
			return
		}
		if b.dirty.Swap(false) {
			b.hub.PublishBook(*b.orders.GetMarketDepth(ctx, 0))
		}
		if b.interval > 0 {
			select {
			case <-time.After(b.interval):
			case <-ctx.Done():
				return
			}
		}
	}
}
