package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Price = decimal.Decimal
type Quantity int64
type OrderId uint64

type Side uint8

const (
	BUY Side = iota
	SELL
)

func (s Side) String() string {
	switch s {
	case BUY:
		return "BUY"
	case SELL:
		return "SELL"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// Opposite returns the side an order of s trades against.
func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

func (s Side) MarshalText() ([]byte, error) {
	if s != BUY && s != SELL {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSide, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	parsed, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSide accepts BUY/SELL and the book-side aliases BID/ASK, case-insensitively.
func ParseSide(raw string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "BID":
		return BUY, nil
	case "SELL", "ASK":
		return SELL, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSide, raw)
}

// Order is a limit order. While it rests in a book Quantity is the unfilled remainder.
type Order struct {
	ID       OrderId  `json:"id"`
	Side     Side     `json:"side"`
	Price    Price    `json:"price"`
	Quantity Quantity `json:"quantity"`
}

func NewOrder(id OrderId, side Side, price Price, quantity Quantity) Order {
	return Order{
		ID:       id,
		Side:     side,
		Price:    price,
		Quantity: quantity,
	}
}

// Validate checks the fields a book needs before the order can rest.
func (o Order) Validate() error {
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: order %d has quantity %d", ErrInvalidQuantity, o.ID, o.Quantity)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("%w: order %d has price %s", ErrInvalidPrice, o.ID, o.Price)
	}
	if o.Side != BUY && o.Side != SELL {
		return fmt.Errorf("%w: order %d", ErrUnknownSide, o.ID)
	}
	return nil
}

func PriceFromFloat(f float64) (Price, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidPrice, f)
	}
	return decimal.NewFromFloat(f), nil
}

// QuantityFromVolume truncates toward zero. A volume that truncates to nothing is rejected.
func QuantityFromVolume(v float64) (Quantity, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: volume %v", ErrInvalidQuantity, v)
	}
	q := Quantity(v)
	if q <= 0 {
		return 0, fmt.Errorf("%w: volume %v", ErrInvalidQuantity, v)
	}
	return q, nil
}
