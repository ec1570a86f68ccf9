package engine

import (
	"fmt"

	orderbookModel "github.com/Yusufzhafir/hftsim/internal/engine/model"
	"github.com/Yusufzhafir/hftsim/pkg/model"
)

// CheckInvariants walks both sides and the id index and returns the first
// inconsistency found, wrapped in model.ErrInvariantViolation.
func (o *OrderBookEngineImpl) CheckInvariants() error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	seen := 0
	for _, s := range []struct {
		side model.Side
		book *bookSide
	}{{model.BUY, o.bids}, {model.SELL, o.asks}} {
		var err error
		s.book.ascend(func(pl *orderbookModel.PriceLevel) bool {
			var n int
			n, err = o.checkLevel(s.side, pl)
			seen += n
			return err == nil
		})
		if err != nil {
			return err
		}
	}

	if seen != len(o.orders) {
		return violationf("index holds %d orders but levels hold %d", len(o.orders), seen)
	}

	bid, ask := o.bids.best(), o.asks.best()
	if bid != nil && ask != nil && !bid.Price.LessThan(ask.Price) {
		return violationf("book is crossed: bid %s >= ask %s", bid.Price, ask.Price)
	}
	return nil
}

func (o *OrderBookEngineImpl) checkLevel(side model.Side, pl *orderbookModel.PriceLevel) (int, error) {
	if pl.IsEmpty() {
		return 0, violationf("%s level %s is empty", side, pl.Price)
	}

	var (
		count  int
		volume model.Quantity
		last   uint64
	)
	for ro := pl.Head(); ro != nil; ro = ro.Next() {
		switch {
		case ro.Quantity <= 0:
			return count, violationf("order %d rests with quantity %d", ro.ID, ro.Quantity)
		case ro.Side != side:
			return count, violationf("order %d is %s but rests on the %s side", ro.ID, ro.Side, side)
		case !ro.Price.Equal(pl.Price):
			return count, violationf("order %d priced %s rests at level %s", ro.ID, ro.Price, pl.Price)
		case ro.Level() != pl:
			return count, violationf("order %d does not point at its level", ro.ID)
		case o.orders[ro.ID] != ro:
			return count, violationf("order %d is not indexed", ro.ID)
		case count > 0 && ro.Seq <= last:
			return count, violationf("order %d is out of arrival order at %s", ro.ID, pl.Price)
		}
		last = ro.Seq
		count++
		volume += ro.Quantity
	}

	if count != pl.Count {
		return count, violationf("level %s counts %d orders but holds %d", pl.Price, pl.Count, count)
	}
	if volume != pl.TotalVolume {
		return count, violationf("level %s reports volume %d but holds %d", pl.Price, pl.TotalVolume, volume)
	}
	return count, nil
}

func violationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvariantViolation, fmt.Sprintf(format, args...))
}
