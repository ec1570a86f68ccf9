package engine

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/Yusufzhafir/hftsim/pkg/util"
	"github.com/shopspring/decimal"
)

func px(s string) model.Price { return decimal.RequireFromString(s) }

func newTestBook(opts ...Option) *OrderBookEngineImpl {
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	return NewOrderBookEngine(append([]Option{WithSymbol("BTC-USD"), WithClock(clock), WithStrictInvariants(true)}, opts...)...)
}

func mustAdd(t *testing.T, ob *OrderBookEngineImpl, id model.OrderId, side model.Side, price string, qty model.Quantity) []model.Trade {
	t.Helper()
	trades, err := ob.AddOrder(model.NewOrder(id, side, px(price), qty))
	if err != nil {
		t.Fatalf("add order %d: %v", id, err)
	}
	if err := ob.CheckInvariants(); err != nil {
		t.Fatalf("after add %d: %v", id, err)
	}
	return trades
}

func remaining(orders []model.Order, id model.OrderId) (model.Quantity, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o.Quantity, true
		}
	}
	return 0, false
}

func TestReferenceScenario(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 101, model.BUY, "1500", 20)
	mustAdd(t, ob, 102, model.SELL, "1510", 25)

	trades := mustAdd(t, ob, 1, model.BUY, "1510", 5)
	if len(trades) != 1 {
		t.Fatalf("expected one trade, got %+v", trades)
	}
	tr := trades[0]
	if tr.BuyOrderID != 1 || tr.SellOrderID != 102 || !tr.Price.Equal(px("1510")) || tr.Quantity != 5 {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if q, _ := remaining(ob.GetSellOrders(), 102); q != 20 {
		t.Fatalf("order 102 should have 20 left, got %d", q)
	}

	trades = mustAdd(t, ob, 2, model.SELL, "1500", 10)
	if len(trades) != 1 || trades[0].BuyOrderID != 101 || !trades[0].Price.Equal(px("1500")) || trades[0].Quantity != 10 {
		t.Fatalf("unexpected trades %+v", trades)
	}
	if q, _ := remaining(ob.GetBuyOrders(), 101); q != 10 {
		t.Fatalf("order 101 should have 10 left, got %d", q)
	}

	trades = mustAdd(t, ob, 3, model.BUY, "1495", 8)
	if len(trades) != 0 {
		t.Fatalf("1495 must not cross 1510, got %+v", trades)
	}
	bids := ob.GetBuyOrders()
	if len(bids) != 2 || bids[0].ID != 101 || bids[1].ID != 3 || bids[1].Quantity != 8 {
		t.Fatalf("unexpected bid side %+v", bids)
	}
}

func TestAddOrderValidation(t *testing.T) {
	ob := newTestBook()
	cases := []struct {
		name  string
		order model.Order
		want  error
	}{
		{"zero quantity", model.NewOrder(1, model.BUY, px("10"), 0), model.ErrInvalidQuantity},
		{"negative quantity", model.NewOrder(2, model.SELL, px("10"), -3), model.ErrInvalidQuantity},
		{"zero price", model.NewOrder(3, model.BUY, px("0"), 1), model.ErrInvalidPrice},
		{"negative price", model.NewOrder(4, model.SELL, px("-1"), 1), model.ErrInvalidPrice},
		{"unknown side", model.Order{ID: 5, Side: model.Side(9), Price: px("1"), Quantity: 1}, model.ErrUnknownSide},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ob.AddOrder(tc.order); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if ob.OrderSize() != 0 {
		t.Fatalf("rejected orders must not rest, book holds %d", ob.OrderSize())
	}
}

func TestDuplicateID(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 7, model.BUY, "99", 1)
	if _, err := ob.AddOrder(model.NewOrder(7, model.SELL, px("120"), 1)); !errors.Is(err, model.ErrDuplicateID) {
		t.Fatalf("expected duplicate id, got %v", err)
	}
	if len(ob.GetSellOrders()) != 0 {
		t.Fatalf("duplicate must not rest")
	}

	// a filled id is free again
	mustAdd(t, ob, 8, model.SELL, "99", 1)
	mustAdd(t, ob, 7, model.SELL, "120", 1)
}

func TestCancel(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 1, model.BUY, "100", 5)
	mustAdd(t, ob, 2, model.BUY, "100", 5)
	mustAdd(t, ob, 3, model.SELL, "105", 5)

	before := ob.GetMarketDepth(10)
	if err := ob.CancelOrder(42); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	after := ob.GetMarketDepth(10)
	if len(before.Bids) != len(after.Bids) || before.Bids[0].Volume != after.Bids[0].Volume {
		t.Fatalf("failed cancel changed the book: %+v -> %+v", before, after)
	}

	if err := ob.CancelOrder(1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := ob.CancelOrder(1); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("second cancel should be not found, got %v", err)
	}
	if err := ob.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	top := ob.GetTopOfBook()
	if top.BestBid == nil || top.BestBid.Volume != 5 || top.BestBid.OrderCount != 1 {
		t.Fatalf("unexpected best bid %+v", top.BestBid)
	}

	if err := ob.CancelOrder(2); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := ob.BestBid(); ok {
		t.Fatalf("emptied level should be pruned")
	}
	if ob.OrderSize() != 1 {
		t.Fatalf("expected only the ask left, got %d", ob.OrderSize())
	}
}

func TestPriceTimePriority(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 1, model.SELL, "100", 5)
	mustAdd(t, ob, 2, model.SELL, "100", 5)
	mustAdd(t, ob, 3, model.SELL, "100", 5)

	trades := mustAdd(t, ob, 10, model.BUY, "100", 7)
	if len(trades) != 2 || trades[0].SellOrderID != 1 || trades[0].Quantity != 5 ||
		trades[1].SellOrderID != 2 || trades[1].Quantity != 2 {
		t.Fatalf("unexpected fills %+v", trades)
	}

	// order 2 keeps the head of the queue with its leftover
	trades = mustAdd(t, ob, 11, model.BUY, "100", 4)
	if len(trades) != 2 || trades[0].SellOrderID != 2 || trades[0].Quantity != 3 ||
		trades[1].SellOrderID != 3 || trades[1].Quantity != 1 {
		t.Fatalf("unexpected fills %+v", trades)
	}
	asks := ob.GetSellOrders()
	if len(asks) != 1 || asks[0].ID != 3 || asks[0].Quantity != 4 {
		t.Fatalf("unexpected asks %+v", asks)
	}
}

func TestMatchAcrossLevels(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 1, model.SELL, "100", 2)
	mustAdd(t, ob, 2, model.SELL, "101", 3)
	mustAdd(t, ob, 3, model.SELL, "102", 5)

	trades := mustAdd(t, ob, 4, model.BUY, "101", 10)
	if len(trades) != 2 {
		t.Fatalf("expected two trades, got %+v", trades)
	}
	if !trades[0].Price.Equal(px("100")) || trades[0].Quantity != 2 ||
		!trades[1].Price.Equal(px("101")) || trades[1].Quantity != 3 {
		t.Fatalf("unexpected trades %+v", trades)
	}
	bid, ok := ob.BestBid()
	if !ok || !bid.Equal(px("101")) {
		t.Fatalf("leftover should rest at 101, got %v", bid)
	}
	ask, _ := ob.BestAsk()
	if !ask.Equal(px("102")) {
		t.Fatalf("best ask should be 102, got %v", ask)
	}
	if q, _ := remaining(ob.GetBuyOrders(), 4); q != 5 {
		t.Fatalf("expected 5 left on order 4, got %d", q)
	}
}

func TestMakerSetsPrice(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 1, model.BUY, "105", 1)
	trades := mustAdd(t, ob, 2, model.SELL, "100", 1)
	if len(trades) != 1 || !trades[0].Price.Equal(px("105")) || trades[0].MakerOrderID != 1 {
		t.Fatalf("resting bid should set the price, got %+v", trades)
	}
	if trades[0].AggressorSide() != model.SELL {
		t.Fatalf("seller was the aggressor")
	}

	mustAdd(t, ob, 3, model.SELL, "100", 1)
	trades = mustAdd(t, ob, 4, model.BUY, "105", 1)
	if len(trades) != 1 || !trades[0].Price.Equal(px("100")) || trades[0].MakerOrderID != 3 {
		t.Fatalf("resting ask should set the price, got %+v", trades)
	}
}

func TestTradeTimestampFromClock(t *testing.T) {
	clock := util.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	ob := NewOrderBookEngine(WithClock(clock), WithStrictInvariants(true))
	mustAdd(t, ob, 1, model.SELL, "10", 1)
	trades := mustAdd(t, ob, 2, model.BUY, "10", 1)
	if trades[0].Timestamp != "2024-03-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", trades[0].Timestamp)
	}
}

func TestUpdateIsAnnotationOnly(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 1, model.BUY, "100", 5)
	mustAdd(t, ob, 2, model.SELL, "110", 5)

	if err := ob.Update(model.MarketTick{Timestamp: "t1", Symbol: "BTC-USD", Price: 120, Volume: 3}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ob.OrderSize() != 2 {
		t.Fatalf("tick must not create or remove orders")
	}
	view := ob.MarketView()
	if !view.LastPrice.Equal(px("120")) || view.LastVolume != 3 || view.LastTimestamp != "t1" || view.Ticks != 1 {
		t.Fatalf("unexpected view %+v", view)
	}

	if err := ob.Update(model.MarketTick{Symbol: "ETH-USD", Price: 1, Volume: 1}); !errors.Is(err, model.ErrSymbolMismatch) {
		t.Fatalf("expected symbol mismatch, got %v", err)
	}
	if err := ob.Update(model.MarketTick{Symbol: "BTC-USD", Price: 0, Volume: 1}); !errors.Is(err, model.ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	if err := ob.Update(model.MarketTick{Symbol: "BTC-USD", Price: 1, Volume: -1}); !errors.Is(err, model.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if ob.MarketView().Ticks != 1 {
		t.Fatalf("rejected ticks must not be recorded")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 1, model.BUY, "100", 5)

	bids := ob.GetBuyOrders()
	bids[0].Quantity = 999
	bids[0].ID = 55

	again := ob.GetBuyOrders()
	if again[0].ID != 1 || again[0].Quantity != 5 {
		t.Fatalf("snapshot mutation leaked into the book: %+v", again)
	}
	if err := ob.CancelOrder(55); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDepthAndTopOfBook(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 1, model.BUY, "99", 1)
	mustAdd(t, ob, 2, model.BUY, "98", 2)
	mustAdd(t, ob, 3, model.BUY, "99", 3)
	mustAdd(t, ob, 4, model.SELL, "101", 4)
	mustAdd(t, ob, 5, model.SELL, "103", 5)

	depth := ob.GetMarketDepth(1)
	if len(depth.Bids) != 1 || len(depth.Asks) != 1 {
		t.Fatalf("depth should be capped at one level: %+v", depth)
	}
	if !depth.Bids[0].Price.Equal(px("99")) || depth.Bids[0].Volume != 4 || depth.Bids[0].OrderCount != 2 {
		t.Fatalf("unexpected bid level %+v", depth.Bids[0])
	}

	full := ob.GetOrderInfos()
	if len(full.Bids) != 2 || len(full.Asks) != 2 || !full.Asks[1].Price.Equal(px("103")) {
		t.Fatalf("unexpected depth %+v", full)
	}

	top := ob.GetTopOfBook()
	if top.Spread == nil || !top.Spread.Equal(px("2")) {
		t.Fatalf("unexpected spread %+v", top.Spread)
	}
}

func TestInvariantViolationStrictPanics(t *testing.T) {
	ob := newTestBook(WithStrictInvariants(true))
	mustAdd(t, ob, 1, model.SELL, "100", 5)
	ob.orders[1].Quantity = 0

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, model.ErrInvariantViolation) {
			t.Fatalf("expected invariant panic, got %v", r)
		}
	}()
	_, _ = ob.AddOrder(model.NewOrder(2, model.BUY, px("100"), 1))
}

func TestInvariantViolationLenientSkips(t *testing.T) {
	ob := newTestBook(WithStrictInvariants(false))
	mustAdd(t, ob, 1, model.SELL, "100", 5)
	mustAdd(t, ob, 2, model.SELL, "101", 5)

	corrupt := ob.orders[1]
	delete(ob.orders, 1)

	trades, err := ob.AddOrder(model.NewOrder(3, model.BUY, px("101"), 2))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(trades) != 1 || trades[0].SellOrderID != 2 {
		t.Fatalf("corrupted order should be skipped, got %+v", trades)
	}
	if corrupt.Level() != nil {
		t.Fatalf("corrupted order should be unlinked")
	}
	if err := ob.CheckInvariants(); err != nil {
		t.Fatalf("book should be consistent again: %v", err)
	}
}

func TestCheckInvariantsReportsDesync(t *testing.T) {
	ob := newTestBook()
	mustAdd(t, ob, 1, model.BUY, "100", 5)
	ob.orders[1].Quantity = 3
	if err := ob.CheckInvariants(); !errors.Is(err, model.ErrInvariantViolation) {
		t.Fatalf("expected level volume mismatch, got %v", err)
	}
}

// Random adds and cancels. Every unit of quantity must end up resting, traded or cancelled.
func TestQuantityConservation(t *testing.T) {
	ob := newTestBook()
	rng := rand.New(rand.NewSource(7))

	var submitted, traded, cancelled model.Quantity
	live := make([]model.OrderId, 0)
	for i := 1; i <= 2000; i++ {
		if len(live) > 0 && rng.Intn(5) == 0 {
			idx := rng.Intn(len(live))
			id := live[idx]
			live = append(live[:idx], live[idx+1:]...)
			left, found := remaining(append(ob.GetBuyOrders(), ob.GetSellOrders()...), id)
			err := ob.CancelOrder(id)
			if found {
				if err != nil {
					t.Fatalf("cancel resting %d: %v", id, err)
				}
				cancelled += left
			} else if !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("cancel filled %d: %v", id, err)
			}
			continue
		}

		side := model.BUY
		if rng.Intn(2) == 0 {
			side = model.SELL
		}
		price := decimal.NewFromInt(int64(95 + rng.Intn(11)))
		qty := model.Quantity(1 + rng.Intn(20))
		trades, err := ob.AddOrder(model.NewOrder(model.OrderId(i), side, price, qty))
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		submitted += qty
		for _, tr := range trades {
			traded += tr.Quantity
		}
		live = append(live, model.OrderId(i))

		if err := ob.CheckInvariants(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	var resting model.Quantity
	for _, o := range append(ob.GetBuyOrders(), ob.GetSellOrders()...) {
		resting += o.Quantity
	}
	// each traded unit consumes one unit from both sides
	if submitted != resting+2*traded+cancelled {
		t.Fatalf("quantity leak: submitted %d resting %d traded %d cancelled %d", submitted, resting, traded, cancelled)
	}
}

func TestConcurrentAddsAndUpdates(t *testing.T) {
	ob := newTestBook()
	const writers, perWriter, tickers = 8, 200, 4

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := model.OrderId(w*perWriter + i + 1)
				side := model.BUY
				price := "100"
				if i%2 == 1 {
					side = model.SELL
				}
				if _, err := ob.AddOrder(model.NewOrder(id, side, px(price), 1)); err != nil {
					t.Errorf("add %d: %v", id, err)
				}
			}
		}(w)
	}
	for m := 0; m < tickers; m++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := ob.Update(model.MarketTick{Symbol: "BTC-USD", Price: 100, Volume: 1}); err != nil {
					t.Errorf("update: %v", err)
				}
				_ = ob.GetBuyOrders()
				_ = ob.GetTopOfBook()
			}
		}()
	}
	wg.Wait()

	if err := ob.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	// equal unit buys and sells at one price always pair off
	if ob.OrderSize() != 0 {
		t.Fatalf("expected an empty book, %d orders rest", ob.OrderSize())
	}
	if ob.MarketView().Ticks != tickers*perWriter {
		t.Fatalf("lost ticks: %d", ob.MarketView().Ticks)
	}
}

func TestDefaultBookDropsCorruptEntries(t *testing.T) {
	ob := NewOrderBookEngine(WithSymbol("BTC-USD"))
	mustAdd(t, ob, 1, model.SELL, "100", 5)
	ob.orders[1].Quantity = 0

	trades, err := ob.AddOrder(model.NewOrder(2, model.BUY, px("100"), 1))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("corrupt order should not trade, got %+v", trades)
	}
	if _, ok := ob.orders[1]; ok {
		t.Fatalf("corrupt order should be dropped")
	}
	if err := ob.CheckInvariants(); err != nil {
		t.Fatalf("book should be consistent again: %v", err)
	}
}
