package model

import (
	"fmt"
	"strings"
	"time"
)

// MarketTick is one observation from the market-data stream.
type MarketTick struct {
	Timestamp string  `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

type SignalKind uint8

const (
	SignalNone SignalKind = iota
	SignalBuy
	SignalSell
)

func (k SignalKind) String() string {
	switch k {
	case SignalNone:
		return "NONE"
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	}
	return fmt.Sprintf("SignalKind(%d)", uint8(k))
}

// Side maps an actionable signal to the order side it produces.
func (k SignalKind) Side() (Side, bool) {
	switch k {
	case SignalBuy:
		return BUY, true
	case SignalSell:
		return SELL, true
	}
	return 0, false
}

func (k SignalKind) MarshalText() ([]byte, error) {
	if k > SignalSell {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSignal, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *SignalKind) UnmarshalText(b []byte) error {
	parsed, err := ParseSignalKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func ParseSignalKind(raw string) (SignalKind, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NONE":
		return SignalNone, nil
	case "BUY":
		return SignalBuy, nil
	case "SELL":
		return SignalSell, nil
	}
	return SignalNone, fmt.Errorf("%w: %q", ErrUnknownSignal, raw)
}

// TradeSignal is an instruction from a strategy to trade now at a price.
type TradeSignal struct {
	Signal SignalKind `json:"signal"`
	Symbol string     `json:"symbol,omitempty"`
	Price  float64    `json:"price"`
	Volume float64    `json:"volume"`
}

// MarketView is what a book remembers from the market-data stream.
type MarketView struct {
	Symbol        string    `json:"symbol"`
	LastPrice     Price     `json:"lastPrice"`
	LastVolume    float64   `json:"lastVolume"`
	LastTimestamp string    `json:"lastTimestamp"`
	Ticks         uint64    `json:"ticks"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
