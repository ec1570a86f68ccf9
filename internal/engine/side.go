package engine

import (
	orderbookModel "github.com/Yusufzhafir/hftsim/internal/engine/model"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/google/btree"
)

// bookSide is one price-level tree. Min() is always the best level because
// bid levels order themselves in reverse.
type bookSide struct {
	tree   *btree.BTree
	newKey func(model.Price) btree.Item
	level  func(btree.Item) *orderbookModel.PriceLevel
}

func newBidSide() *bookSide {
	return &bookSide{
		tree:   btree.New(32),
		newKey: func(p model.Price) btree.Item { return orderbookModel.NewBidPriceLevel(p) },
		level: func(it btree.Item) *orderbookModel.PriceLevel {
			return &it.(*orderbookModel.BidPriceLevel).PriceLevel
		},
	}
}

func newAskSide() *bookSide {
	return &bookSide{
		tree:   btree.New(32),
		newKey: func(p model.Price) btree.Item { return orderbookModel.NewAskPriceLevel(p) },
		level: func(it btree.Item) *orderbookModel.PriceLevel {
			return &it.(*orderbookModel.AskPriceLevel).PriceLevel
		},
	}
}

func (s *bookSide) best() *orderbookModel.PriceLevel {
	if s.tree.Len() == 0 {
		return nil
	}
	return s.level(s.tree.Min())
}

func (s *bookSide) get(price model.Price) *orderbookModel.PriceLevel {
	item := s.tree.Get(s.newKey(price))
	if item == nil {
		return nil
	}
	return s.level(item)
}

func (s *bookSide) getOrCreate(price model.Price) *orderbookModel.PriceLevel {
	if pl := s.get(price); pl != nil {
		return pl
	}
	item := s.newKey(price)
	s.tree.ReplaceOrInsert(item)
	return s.level(item)
}

func (s *bookSide) remove(price model.Price) {
	s.tree.Delete(s.newKey(price))
}

// ascend walks levels best first until fn returns false.
func (s *bookSide) ascend(fn func(pl *orderbookModel.PriceLevel) bool) {
	s.tree.Ascend(func(item btree.Item) bool {
		return fn(s.level(item))
	})
}

func (s *bookSide) depth(levels int) []model.MarketDepthLevel {
	out := make([]model.MarketDepthLevel, 0, min(levels, s.tree.Len()))
	s.ascend(func(pl *orderbookModel.PriceLevel) bool {
		if len(out) >= levels {
			return false
		}
		out = append(out, depthLevel(pl))
		return true
	})
	return out
}

func (s *bookSide) orders() []model.Order {
	out := make([]model.Order, 0)
	s.ascend(func(pl *orderbookModel.PriceLevel) bool {
		out = append(out, pl.Orders()...)
		return true
	})
	return out
}

func depthLevel(pl *orderbookModel.PriceLevel) model.MarketDepthLevel {
	return model.MarketDepthLevel{
		Price:      pl.Price,
		Volume:     pl.TotalVolume,
		OrderCount: pl.Count,
	}
}
