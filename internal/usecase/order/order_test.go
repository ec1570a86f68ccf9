package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Yusufzhafir/hftsim/internal/engine"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/shopspring/decimal"
)

func newUseCase(t *testing.T) (OrderUseCase, *engine.OrderBookEngineImpl) {
	t.Helper()
	book := engine.NewOrderBookEngine(engine.WithSymbol("BTC-USD"), engine.WithStrictInvariants(true))
	return NewOrderUseCase(OrderUseCaseOpts{OrderBookEngine: book, Symbol: "BTC-USD"}), book
}

func seed(t *testing.T, uc OrderUseCase, id model.OrderId, side model.Side, price int64, qty model.Quantity) {
	t.Helper()
	if _, err := uc.PlaceOrder(context.Background(), model.NewOrder(id, side, decimal.NewFromInt(price), qty)); err != nil {
		t.Fatalf("seed %d: %v", id, err)
	}
}

func TestExecuteReferenceScenario(t *testing.T) {
	ctx := context.Background()
	uc, book := newUseCase(t)
	seed(t, uc, 101, model.BUY, 1500, 20)
	seed(t, uc, 102, model.SELL, 1510, 25)

	trades, err := uc.Execute(ctx, model.TradeSignal{Signal: model.SignalBuy, Symbol: "BTC-USD", Price: 1510, Volume: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].SellOrderID != 102 || trades[0].BuyOrderID != DefaultFirstOrderID || trades[0].Quantity != 5 {
		t.Fatalf("unexpected trades %+v", trades)
	}

	trades, err = uc.Execute(ctx, model.TradeSignal{Signal: model.SignalSell, Symbol: "BTC-USD", Price: 1500, Volume: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].BuyOrderID != 101 || !trades[0].Price.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected trades %+v", trades)
	}

	trades, err = uc.Execute(ctx, model.TradeSignal{Signal: model.SignalBuy, Symbol: "BTC-USD", Price: 1495, Volume: 8})
	if err != nil || len(trades) != 0 {
		t.Fatalf("1495 should rest: %+v %v", trades, err)
	}

	history := uc.GetTradeHistory(ctx)
	if len(history) != 2 || history[0].SellOrderID != 102 || history[1].BuyOrderID != 101 {
		t.Fatalf("unexpected history %+v", history)
	}
	bids := book.GetBuyOrders()
	if len(bids) != 2 || bids[1].Quantity != 8 || !bids[1].Price.Equal(decimal.NewFromInt(1495)) {
		t.Fatalf("unexpected bids %+v", bids)
	}
}

func TestExecuteNoneIsNoop(t *testing.T) {
	uc, book := newUseCase(t)
	trades, err := uc.Execute(context.Background(), model.TradeSignal{Signal: model.SignalNone})
	if err != nil || trades != nil {
		t.Fatalf("NONE must be a silent no-op, got %+v %v", trades, err)
	}
	if book.OrderSize() != 0 {
		t.Fatalf("NONE must not enqueue")
	}
}

func TestExecuteRejectsBadTerms(t *testing.T) {
	ctx := context.Background()
	uc, book := newUseCase(t)
	cases := []struct {
		name   string
		signal model.TradeSignal
		want   error
	}{
		{"zero volume", model.TradeSignal{Signal: model.SignalBuy, Price: 10, Volume: 0}, model.ErrInvalidQuantity},
		{"fractional volume", model.TradeSignal{Signal: model.SignalBuy, Price: 10, Volume: 0.4}, model.ErrInvalidQuantity},
		{"zero price", model.TradeSignal{Signal: model.SignalSell, Price: 0, Volume: 1}, model.ErrInvalidPrice},
		{"other symbol", model.TradeSignal{Signal: model.SignalSell, Symbol: "ETH-USD", Price: 1, Volume: 1}, model.ErrSymbolMismatch},
		{"unknown kind", model.TradeSignal{Signal: model.SignalKind(7), Price: 1, Volume: 1}, model.ErrUnknownSignal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := uc.Execute(ctx, tc.signal); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if book.OrderSize() != 0 {
		t.Fatalf("rejected signals must not enqueue")
	}
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	uc, book := newUseCase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := uc.Execute(ctx, model.TradeSignal{Signal: model.SignalBuy, Price: 1, Volume: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if book.OrderSize() != 0 {
		t.Fatalf("cancelled execute must not reach the book")
	}
}

func TestGeneratedIDSkipsSeededOrder(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase(t)
	seed(t, uc, DefaultFirstOrderID, model.BUY, 10, 1)

	_, id, err := uc.AddOrder(ctx, model.BUY, decimal.NewFromInt(9), 1)
	if err != nil {
		t.Fatal(err)
	}
	if id != DefaultFirstOrderID+1 {
		t.Fatalf("expected the next free id, got %d", id)
	}
}

func TestCancelPropagatesNotFound(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase(t)
	_, id, err := uc.AddOrder(ctx, model.SELL, decimal.NewFromInt(10), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := uc.CancelOrder(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := uc.CancelOrder(ctx, id); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTradeHandlers(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase(t)

	var got []model.Trade
	unregister := uc.RegisterTradeHandler(func(tr model.Trade) { got = append(got, tr) })

	seed(t, uc, 1, model.SELL, 100, 1)
	seed(t, uc, 2, model.SELL, 101, 1)
	if _, err := uc.Execute(ctx, model.TradeSignal{Signal: model.SignalBuy, Price: 101, Volume: 2}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].SellOrderID != 1 || got[1].SellOrderID != 2 {
		t.Fatalf("handler saw %+v", got)
	}

	unregister()
	unregister()
	seed(t, uc, 3, model.SELL, 100, 1)
	if _, err := uc.Execute(ctx, model.TradeSignal{Signal: model.SignalBuy, Price: 100, Volume: 1}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("unregistered handler still called")
	}
	if len(uc.GetTradeHistory(ctx)) != 3 {
		t.Fatalf("history should still record every trade")
	}
}

func TestHistoryIsACopy(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase(t)
	seed(t, uc, 1, model.SELL, 100, 1)
	seed(t, uc, 2, model.BUY, 100, 1)

	h := uc.GetTradeHistory(ctx)
	h[0].Quantity = 99
	if uc.GetTradeHistory(ctx)[0].Quantity != 1 {
		t.Fatalf("history leaked")
	}
}

func TestConcurrentExecuteAndUpdate(t *testing.T) {
	ctx := context.Background()
	uc, book := newUseCase(t)
	const workers, perWorker = 8, 250

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			kind := model.SignalBuy
			if w%2 == 1 {
				kind = model.SignalSell
			}
			for i := 0; i < perWorker; i++ {
				if _, err := uc.Execute(ctx, model.TradeSignal{Signal: kind, Price: 100, Volume: 2}); err != nil {
					t.Errorf("execute: %v", err)
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := book.Update(model.MarketTick{Symbol: "BTC-USD", Price: 100, Volume: 1}); err != nil {
					t.Errorf("update: %v", err)
				}
				_ = uc.GetTradeHistory(ctx)
			}
		}()
	}
	wg.Wait()

	if err := book.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	// equal buy and sell flow at one price always clears
	if book.OrderSize() != 0 {
		t.Fatalf("expected an empty book, %d rest", book.OrderSize())
	}
	var traded model.Quantity
	for _, tr := range uc.GetTradeHistory(ctx) {
		traded += tr.Quantity
	}
	if traded != workers/2*perWorker*2 {
		t.Fatalf("expected %d traded, got %d", workers/2*perWorker*2, traded)
	}
}

func TestBookHandlersSeeRestsAndCancels(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase(t)
	changes := 0
	unregister := uc.RegisterBookHandler(func() { changes++ })

	seed(t, uc, 101, model.BUY, 1500, 20)
	if changes != 1 {
		t.Fatalf("resting order: %d changes", changes)
	}
	if _, _, err := uc.AddOrder(ctx, model.SELL, decimal.NewFromInt(1510), 5); err != nil {
		t.Fatal(err)
	}
	if err := uc.CancelOrder(ctx, 101); err != nil {
		t.Fatal(err)
	}
	if changes != 3 {
		t.Fatalf("after rest and cancel: %d changes", changes)
	}

	_ = uc.CancelOrder(ctx, 101)
	_, _ = uc.Execute(ctx, model.TradeSignal{Signal: model.SignalNone})
	_, _ = uc.PlaceOrder(ctx, model.NewOrder(7, model.BUY, decimal.NewFromInt(1), 0))
	if changes != 3 {
		t.Fatalf("rejected calls must not report a change, got %d", changes)
	}

	unregister()
	unregister()
	seed(t, uc, 102, model.BUY, 1400, 1)
	if changes != 3 {
		t.Fatalf("handler still called after unregister")
	}
}
