package model

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSignalKind(t *testing.T) {
	cases := map[string]SignalKind{"BUY": SignalBuy, "sell": SignalSell, " None ": SignalNone}
	for raw, want := range cases {
		got, err := ParseSignalKind(raw)
		if err != nil || got != want {
			t.Fatalf("%q: got %v, %v", raw, got, err)
		}
	}
	if _, err := ParseSignalKind("HOLD"); !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("expected unknown signal, got %v", err)
	}
	if _, ok := SignalNone.Side(); ok {
		t.Fatalf("NONE has no side")
	}
	if side, ok := SignalSell.Side(); !ok || side != SELL {
		t.Fatalf("SELL maps to %v", side)
	}
}

func TestParseSide(t *testing.T) {
	for raw, want := range map[string]Side{"buy": BUY, "BID": BUY, "Sell": SELL, "ask": SELL} {
		if got, err := ParseSide(raw); err != nil || got != want {
			t.Fatalf("%q: got %v, %v", raw, got, err)
		}
	}
	if _, err := ParseSide("short"); !errors.Is(err, ErrUnknownSide) {
		t.Fatalf("expected unknown side, got %v", err)
	}
	if BUY.Opposite() != SELL || SELL.Opposite() != BUY {
		t.Fatalf("opposite sides are wrong")
	}
}

func TestQuantityFromVolume(t *testing.T) {
	if q, err := QuantityFromVolume(12.9); err != nil || q != 12 {
		t.Fatalf("expected truncation to 12, got %d %v", q, err)
	}
	for _, v := range []float64{0, 0.5, -3, math.NaN(), math.Inf(1)} {
		if _, err := QuantityFromVolume(v); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("volume %v should be invalid, got %v", v, err)
		}
	}
}

func TestPriceFromFloat(t *testing.T) {
	p, err := PriceFromFloat(1510.25)
	if err != nil || !p.Equal(decimal.RequireFromString("1510.25")) {
		t.Fatalf("got %s %v", p, err)
	}
	for _, f := range []float64{0, -1, math.NaN(), math.Inf(-1)} {
		if _, err := PriceFromFloat(f); !errors.Is(err, ErrInvalidPrice) {
			t.Fatalf("price %v should be invalid, got %v", f, err)
		}
	}
}

func TestTradeJSON(t *testing.T) {
	tr := Trade{BuyOrderID: 1, SellOrderID: 102, MakerOrderID: 102, Price: decimal.NewFromInt(1510), Quantity: 5, Timestamp: "ts"}
	b, err := json.Marshal(tr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"price":1510`) {
		t.Fatalf("price should be a JSON number: %s", b)
	}
	if tr.AggressorSide() != BUY {
		t.Fatalf("the buyer took the resting sell")
	}

	var sig TradeSignal
	if err := json.Unmarshal([]byte(`{"signal":"sell","price":1,"volume":2}`), &sig); err != nil || sig.Signal != SignalSell {
		t.Fatalf("signal decode: %+v %v", sig, err)
	}
}

func TestNewTopOfBook(t *testing.T) {
	bid := &MarketDepthLevel{Price: decimal.NewFromInt(1500), Volume: 20, OrderCount: 1}
	ask := &MarketDepthLevel{Price: decimal.NewFromInt(1510), Volume: 25, OrderCount: 1}

	tob := NewTopOfBook(bid, ask)
	if tob.Spread == nil || !tob.Spread.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("spread = %v", tob.Spread)
	}
	if tob.Mid == nil || !tob.Mid.Equal(decimal.NewFromInt(1505)) {
		t.Fatalf("mid = %v", tob.Mid)
	}

	oneSided := NewTopOfBook(bid, nil)
	if oneSided.Spread != nil || oneSided.Mid != nil {
		t.Fatalf("one-sided book has spread %v mid %v", oneSided.Spread, oneSided.Mid)
	}
}
