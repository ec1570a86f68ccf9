package engine

import (
	"fmt"
	"math"
	"sync"

	orderbookModel "github.com/Yusufzhafir/hftsim/internal/engine/model"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/Yusufzhafir/hftsim/pkg/util"
	"go.uber.org/zap"
)

const defaultDepthLevels = 10

type OrderBookEngine interface {
	AddOrder(order model.Order) ([]model.Trade, error)
	CancelOrder(orderID model.OrderId) error
	MatchOrders() []model.Trade
	Update(tick model.MarketTick) error

	GetBuyOrders() []model.Order
	GetSellOrders() []model.Order
	BestBid() (model.Price, bool)
	BestAsk() (model.Price, bool)
	OrderSize() int
	GetTopOfBook() *model.TopOfBook
	GetOrderInfos() *model.MarketDepth
	GetMarketDepth(levels int) *model.MarketDepth
	MarketView() model.MarketView
	CheckInvariants() error
}

// OrderBookEngineImpl is a single-instrument limit order book. All methods are
// safe for concurrent use; mutations are serialised behind one lock.
type OrderBookEngineImpl struct {
	mu sync.RWMutex

	bids, asks *bookSide
	orders     map[model.OrderId]*orderbookModel.RestingOrder // lookup by ID
	seq        uint64
	view       model.MarketView

	symbol string
	clock  util.Clock
	logger *zap.Logger
	strict bool
}

type Option func(*OrderBookEngineImpl)

// WithSymbol pins the book to one instrument. Ticks for other symbols are rejected.
func WithSymbol(symbol string) Option {
	return func(o *OrderBookEngineImpl) { o.symbol = symbol }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *OrderBookEngineImpl) { o.logger = logger }
}

func WithClock(clock util.Clock) Option {
	return func(o *OrderBookEngineImpl) { o.clock = clock }
}

// WithStrictInvariants makes a corrupted book panic instead of logging and
// dropping the bad entry. Off by default.
func WithStrictInvariants(strict bool) Option {
	return func(o *OrderBookEngineImpl) { o.strict = strict }
}

func NewOrderBookEngine(opts ...Option) *OrderBookEngineImpl {
	o := &OrderBookEngineImpl{
		bids:   newBidSide(),
		asks:   newAskSide(),
		orders: make(map[model.OrderId]*orderbookModel.RestingOrder),
		clock:  util.RealClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.view.Symbol = o.symbol
	o.logger = o.logger.With(zap.String("component", "orderbook"), zap.String("symbol", o.symbol))
	return o
}

func (o *OrderBookEngineImpl) sideOf(side model.Side) *bookSide {
	if side == model.BUY {
		return o.bids
	}
	return o.asks
}

// AddOrder rests the order at the tail of its price level and then matches
// the whole book. Trades are returned in the order they were generated.
func (o *OrderBookEngineImpl) AddOrder(order model.Order) ([]model.Trade, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.orders[order.ID]; ok {
		return nil, fmt.Errorf("%w: %d", model.ErrDuplicateID, order.ID)
	}

	o.seq++
	resting := &orderbookModel.RestingOrder{Order: order, Seq: o.seq}
	o.sideOf(order.Side).getOrCreate(order.Price).Enqueue(resting)
	o.orders[order.ID] = resting

	return o.matchOrders(), nil
}

func (o *OrderBookEngineImpl) CancelOrder(orderID model.OrderId) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	resting, exists := o.orders[orderID]
	if !exists {
		return fmt.Errorf("%w: %d", model.ErrNotFound, orderID)
	}
	o.removeResting(o.sideOf(resting.Side), resting)
	return nil
}

func (o *OrderBookEngineImpl) MatchOrders() []model.Trade {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.matchOrders()
}

// matchOrders crosses best bid against best ask until the book no longer
// crosses. The resting order that arrived first is the maker and sets the price.
func (o *OrderBookEngineImpl) matchOrders() []model.Trade {
	var trades []model.Trade
	var ts string

	for {
		bidLevel := o.bids.best()
		askLevel := o.asks.best()
		if bidLevel == nil || askLevel == nil {
			break
		}
		if bidLevel.Price.LessThan(askLevel.Price) {
			break
		}

		bid, ask := bidLevel.Head(), askLevel.Head()
		if !o.checkHead(o.bids, bidLevel, bid) || !o.checkHead(o.asks, askLevel, ask) {
			continue
		}

		qty := min(bid.Quantity, ask.Quantity)
		maker := ask
		if bid.Seq < ask.Seq {
			maker = bid
		}
		if ts == "" {
			ts = model.FormatTimestamp(o.clock.Now())
		}

		bidLevel.Fill(bid, qty)
		askLevel.Fill(ask, qty)
		trades = append(trades, model.Trade{
			BuyOrderID:   bid.ID,
			SellOrderID:  ask.ID,
			MakerOrderID: maker.ID,
			Price:        maker.Price,
			Quantity:     qty,
			Timestamp:    ts,
		})

		if bid.Quantity == 0 {
			o.removeResting(o.bids, bid)
		}
		if ask.Quantity == 0 {
			o.removeResting(o.asks, ask)
		}
	}

	if len(trades) > 0 {
		o.logger.Debug("matched", zap.Int("trades", len(trades)), zap.Int("resting", len(o.orders)))
	}
	return trades
}

// checkHead reports whether head can take part in a match. A broken head is
// handed to violation and removed so matching can go on.
func (o *OrderBookEngineImpl) checkHead(side *bookSide, pl *orderbookModel.PriceLevel, head *orderbookModel.RestingOrder) bool {
	switch {
	case head == nil:
		o.violation("empty price level", zap.String("price", pl.Price.String()))
		side.remove(pl.Price)
		return false
	case o.orders[head.ID] != head:
		o.violation("resting order missing from index", zap.Uint64("orderId", uint64(head.ID)))
		o.dropResting(side, head)
		return false
	case head.Quantity <= 0:
		o.violation("resting order without quantity",
			zap.Uint64("orderId", uint64(head.ID)), zap.Int64("quantity", int64(head.Quantity)))
		o.dropResting(side, head)
		return false
	}
	return true
}

func (o *OrderBookEngineImpl) removeResting(side *bookSide, resting *orderbookModel.RestingOrder) {
	pl := resting.Level()
	if pl != nil {
		pl.Remove(resting)
		if pl.IsEmpty() {
			side.remove(pl.Price)
		}
	}
	delete(o.orders, resting.ID)
}

// dropResting removes a corrupted entry without touching an index slot that
// belongs to a different order.
func (o *OrderBookEngineImpl) dropResting(side *bookSide, resting *orderbookModel.RestingOrder) {
	if pl := resting.Level(); pl != nil {
		pl.Remove(resting)
		if pl.IsEmpty() {
			side.remove(pl.Price)
		}
	}
	if o.orders[resting.ID] == resting {
		delete(o.orders, resting.ID)
	}
}

func (o *OrderBookEngineImpl) violation(reason string, fields ...zap.Field) {
	if o.strict {
		panic(fmt.Errorf("%w: %s", model.ErrInvariantViolation, reason))
	}
	o.logger.Error("order book invariant violated, dropping entry", append(fields, zap.String("reason", reason))...)
}

// Update records a market tick. It never touches resting orders.
func (o *OrderBookEngineImpl) Update(tick model.MarketTick) error {
	price, err := model.PriceFromFloat(tick.Price)
	if err != nil {
		return fmt.Errorf("tick %s: %w", tick.Symbol, err)
	}
	if math.IsNaN(tick.Volume) || tick.Volume < 0 {
		return fmt.Errorf("tick %s: %w: volume %v", tick.Symbol, model.ErrInvalidQuantity, tick.Volume)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.symbol != "" && tick.Symbol != "" && tick.Symbol != o.symbol {
		return fmt.Errorf("%w: book %s got tick for %s", model.ErrSymbolMismatch, o.symbol, tick.Symbol)
	}
	if tick.Symbol != "" {
		o.view.Symbol = tick.Symbol
	}
	o.view.LastPrice = price
	o.view.LastVolume = tick.Volume
	o.view.LastTimestamp = tick.Timestamp
	o.view.Ticks++
	o.view.UpdatedAt = o.clock.Now()
	return nil
}

func (o *OrderBookEngineImpl) MarketView() model.MarketView {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.view
}

// GetBuyOrders returns resting bids, best price first and FIFO within a price.
func (o *OrderBookEngineImpl) GetBuyOrders() []model.Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.bids.orders()
}

// GetSellOrders returns resting asks, best price first and FIFO within a price.
func (o *OrderBookEngineImpl) GetSellOrders() []model.Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.asks.orders()
}

func (o *OrderBookEngineImpl) BestBid() (model.Price, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if pl := o.bids.best(); pl != nil {
		return pl.Price, true
	}
	return model.Price{}, false
}

func (o *OrderBookEngineImpl) BestAsk() (model.Price, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if pl := o.asks.best(); pl != nil {
		return pl.Price, true
	}
	return model.Price{}, false
}

// OrderSize is the number of resting orders on both sides.
func (o *OrderBookEngineImpl) OrderSize() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.orders)
}

func (o *OrderBookEngineImpl) GetMarketDepth(levels int) *model.MarketDepth {
	if levels <= 0 {
		levels = defaultDepthLevels
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return &model.MarketDepth{
		Symbol:    o.symbol,
		Bids:      o.bids.depth(levels),
		Asks:      o.asks.depth(levels),
		Timestamp: o.clock.Now().UnixMilli(),
	}
}

// GetTopOfBook returns best bid and ask
func (o *OrderBookEngineImpl) GetTopOfBook() *model.TopOfBook {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var bid, ask *model.MarketDepthLevel
	if pl := o.bids.best(); pl != nil {
		lvl := depthLevel(pl)
		bid = &lvl
	}
	if pl := o.asks.best(); pl != nil {
		lvl := depthLevel(pl)
		ask = &lvl
	}
	return model.NewTopOfBook(bid, ask)
}

func (o *OrderBookEngineImpl) GetOrderInfos() *model.MarketDepth {
	return o.GetMarketDepth(defaultDepthLevels)
}
