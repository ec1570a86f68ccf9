package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Yusufzhafir/hftsim/internal/ingest"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/Yusufzhafir/hftsim/pkg/util"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// feedgen emits a random-walk market feed and random strategy signals as
// JSON datagrams, the shape the simulator's UDP listeners decode.
func main() {
	marketAddr := flag.String("market", "127.0.0.1"+ingest.DefaultMarketAddr, "UDP address of the market feed, empty to skip")
	signalAddr := flag.String("signals", "127.0.0.1"+ingest.DefaultSignalAddr, "UDP address of the signal feed, empty to skip")
	redisAddr := flag.String("redis", "", "publish signals to this redis instead of UDP")
	redisChannel := flag.String("redis-channel", "hftsim.signals", "redis channel for signals")
	symbol := flag.String("symbol", "AAPL", "symbol to stamp on ticks and signals")
	mid := flag.Float64("mid", 1505, "starting mid price")
	tickEvery := flag.Duration("tick-every", 100*time.Millisecond, "interval between ticks")
	signalEvery := flag.Duration("signal-every", time.Second, "interval between signals")
	count := flag.Int("count", 0, "stop after this many signals, 0 runs until interrupted")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	logger, err := util.NewLogger("info")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := newGenerator(*symbol, *mid, *seed)
	g, ctx := errgroup.WithContext(ctx)

	if *marketAddr != "" {
		send, closeFn, err := udpSender(*marketAddr)
		if err != nil {
			logger.Fatal("market socket", zap.Error(err))
		}
		defer closeFn()
		g.Go(func() error {
			return every(ctx, *tickEvery, 0, func() error { return send(ctx, gen.tick(time.Now())) })
		})
	}

	var sendSignal func(context.Context, any) error
	switch {
	case *redisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		sendSignal = func(ctx context.Context, v any) error {
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			return rdb.Publish(ctx, *redisChannel, b).Err()
		}
	case *signalAddr != "":
		send, closeFn, err := udpSender(*signalAddr)
		if err != nil {
			logger.Fatal("signal socket", zap.Error(err))
		}
		defer closeFn()
		sendSignal = send
	}
	if sendSignal != nil {
		g.Go(func() error {
			err := every(ctx, *signalEvery, *count, func() error {
				sig := gen.signal()
				logger.Info("signal", zap.Any("payload", sig))
				return sendSignal(ctx, sig)
			})
			if err == nil && *count > 0 {
				stop()
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("feed stopped", zap.Error(err))
		os.Exit(1)
	}
}

func udpSender(addr string) (func(context.Context, any) error, func() error, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, nil, err
	}
	send := func(_ context.Context, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = conn.Write(b)
		return err
	}
	return send, conn.Close, nil
}

// every calls fn each interval until ctx ends or n calls were made (n > 0).
func every(ctx context.Context, interval time.Duration, n int, fn func() error) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for i := 0; n == 0 || i < n; i++ {
		if err := fn(); err != nil {
			return err
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

type wireTick struct {
	Timestamp string  `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

type wireSignal struct {
	Signal string  `json:"signal"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

type generator struct {
	symbol string
	mid    float64
	rng    *rand.Rand
}

func newGenerator(symbol string, mid float64, seed uint64) *generator {
	return &generator{symbol: symbol, mid: mid, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// tick moves the mid by a small gaussian step and never below one cent.
func (g *generator) tick(now time.Time) wireTick {
	g.mid = math.Max(0.01, g.mid*(1+g.rng.NormFloat64()*0.0005))
	return wireTick{
		Timestamp: model.FormatTimestamp(now),
		Symbol:    g.symbol,
		Price:     round2(g.mid),
		Volume:    float64(1 + g.rng.IntN(500)),
	}
}

// signal picks BUY, SELL or NONE and prices marketable orders a few ticks
// through the mid so some of them cross.
func (g *generator) signal() wireSignal {
	kinds := [...]model.SignalKind{model.SignalBuy, model.SignalSell, model.SignalNone}
	kind := kinds[g.rng.IntN(len(kinds))]
	if kind == model.SignalNone {
		return wireSignal{Signal: kind.String(), Symbol: g.symbol}
	}
	offset := float64(g.rng.IntN(10)) * 0.5
	price := g.mid + offset
	if kind == model.SignalSell {
		price = g.mid - offset
	}
	return wireSignal{
		Signal: kind.String(),
		Symbol: g.symbol,
		Price:  round2(math.Max(0.01, price)),
		Volume: float64(1 + g.rng.IntN(20)),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
