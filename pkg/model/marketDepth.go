package model

import "github.com/shopspring/decimal"

var two = decimal.NewFromInt(2)

// MarketDepthLevel aggregates the resting orders at one price.
type MarketDepthLevel struct {
	Price      Price    `json:"price"`
	Volume     Quantity `json:"volume"`
	OrderCount int      `json:"orderCount"`
}

// MarketDepth is the aggregated book, best level first on each side.
type MarketDepth struct {
	Symbol    string             `json:"symbol,omitempty"`
	Bids      []MarketDepthLevel `json:"bids"`
	Asks      []MarketDepthLevel `json:"asks"`
	Timestamp int64              `json:"timestamp"` // unix ms
}

// TopOfBook holds the best level of each side. Spread and Mid are set only
// when both sides are present.
type TopOfBook struct {
	BestBid *MarketDepthLevel `json:"bestBid"`
	BestAsk *MarketDepthLevel `json:"bestAsk"`
	Spread  *Price            `json:"spread,omitempty"`
	Mid     *Price            `json:"mid,omitempty"`
}

func NewTopOfBook(bid, ask *MarketDepthLevel) *TopOfBook {
	tob := &TopOfBook{BestBid: bid, BestAsk: ask}
	if bid != nil && ask != nil {
		spread := ask.Price.Sub(bid.Price)
		mid := ask.Price.Add(bid.Price).Div(two)
		tob.Spread, tob.Mid = &spread, &mid
	}
	return tob
}
