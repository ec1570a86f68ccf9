package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the layout used for trade and tick timestamps.
const TimestampLayout = time.RFC3339Nano

type Trade struct {
	BuyOrderID   OrderId  `json:"buyOrderId"`
	SellOrderID  OrderId  `json:"sellOrderId"`
	MakerOrderID OrderId  `json:"makerOrderId"`
	Price        Price    `json:"price"`
	Quantity     Quantity `json:"quantity"`
	Timestamp    string   `json:"timestamp"`
}

// AggressorSide is the side of the order that did not set the price.
func (t Trade) AggressorSide() Side {
	if t.MakerOrderID == t.SellOrderID {
		return BUY
	}
	return SELL
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func init() {
	// prices leave the process as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}
