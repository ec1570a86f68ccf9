package model

import (
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/google/btree"
)

// RestingOrder is an order sitting in a level queue. Quantity on the embedded
// order is what is left to fill.
type RestingOrder struct {
	model.Order
	Seq uint64 // arrival sequence, lower arrived first

	level      *PriceLevel
	prev, next *RestingOrder
}

func (ro *RestingOrder) Level() *PriceLevel { return ro.level }

func (ro *RestingOrder) Next() *RestingOrder { return ro.next }

// PriceLevel is the FIFO of resting orders at one price.
type PriceLevel struct {
	Price       model.Price
	TotalVolume model.Quantity
	Count       int

	head, tail *RestingOrder
}

func (pl *PriceLevel) Head() *RestingOrder { return pl.head }

func (pl *PriceLevel) IsEmpty() bool { return pl.head == nil }

// Enqueue appends at the tail.
func (pl *PriceLevel) Enqueue(ro *RestingOrder) {
	ro.level = pl
	ro.prev = pl.tail
	ro.next = nil
	if pl.tail != nil {
		pl.tail.next = ro
	} else {
		pl.head = ro
	}
	pl.tail = ro
	pl.TotalVolume += ro.Quantity
	pl.Count++
}

// Remove unlinks ro wherever it sits in the queue.
func (pl *PriceLevel) Remove(ro *RestingOrder) bool {
	if ro.level != pl {
		return false
	}
	if ro.prev != nil {
		ro.prev.next = ro.next
	} else {
		pl.head = ro.next
	}
	if ro.next != nil {
		ro.next.prev = ro.prev
	} else {
		pl.tail = ro.prev
	}
	pl.TotalVolume -= ro.Quantity
	pl.Count--
	ro.prev, ro.next, ro.level = nil, nil, nil
	return true
}

// Fill takes qty off ro without moving it in the queue.
func (pl *PriceLevel) Fill(ro *RestingOrder, qty model.Quantity) {
	ro.Quantity -= qty
	pl.TotalVolume -= qty
}

// Orders copies the queue in arrival order.
func (pl *PriceLevel) Orders() []model.Order {
	out := make([]model.Order, 0, pl.Count)
	for ro := pl.head; ro != nil; ro = ro.next {
		out = append(out, ro.Order)
	}
	return out
}

// AskPriceLevel ascending
type AskPriceLevel struct {
	PriceLevel
}

func NewAskPriceLevel(price model.Price) *AskPriceLevel {
	return &AskPriceLevel{PriceLevel{Price: price}}
}

func (pl *AskPriceLevel) Less(than btree.Item) bool {
	other := than.(*AskPriceLevel)
	return pl.Price.LessThan(other.Price)
}

// BidPriceLevel descending
type BidPriceLevel struct {
	PriceLevel
}

func NewBidPriceLevel(price model.Price) *BidPriceLevel {
	return &BidPriceLevel{PriceLevel{Price: price}}
}

func (bpl *BidPriceLevel) Less(than btree.Item) bool {
	other := than.(*BidPriceLevel)
	return bpl.Price.GreaterThan(other.Price) // Reverse
}
