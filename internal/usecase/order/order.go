package order

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Yusufzhafir/hftsim/internal/engine"
	"github.com/Yusufzhafir/hftsim/internal/sequence"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"go.uber.org/zap"
)

// DefaultFirstOrderID keeps generated ids clear of small hand-seeded ones.
const DefaultFirstOrderID = 1_000_000

const maxIDAttempts = 16

type OrderUseCase interface {
	// Execute turns a signal into a marketable order. NONE is a no-op.
	Execute(ctx context.Context, signal model.TradeSignal) ([]model.Trade, error)

	AddOrder(ctx context.Context, side model.Side, price model.Price, quantity model.Quantity) (trades []model.Trade, orderID model.OrderId, err error)

	// PlaceOrder submits an order carrying its own id.
	PlaceOrder(ctx context.Context, order model.Order) ([]model.Trade, error)

	CancelOrder(ctx context.Context, orderID model.OrderId) error

	GetTradeHistory(ctx context.Context) []model.Trade

	OrderSize(ctx context.Context) int
	GetTopOfBook(ctx context.Context) *model.TopOfBook
	GetOrderInfos(ctx context.Context) *model.MarketDepth
	GetMarketDepth(ctx context.Context, levels int) *model.MarketDepth
	GetBuyOrders(ctx context.Context) []model.Order
	GetSellOrders(ctx context.Context) []model.Order
	MarketView(ctx context.Context) model.MarketView
	CheckInvariants(ctx context.Context) error

	// RegisterTradeHandler subscribes to every recorded trade. Handlers run
	// while the next execution waits, so they must not block.
	RegisterTradeHandler(handler TradeHandler) (unregister func())

	// RegisterBookHandler is called after every accepted add or cancel,
	// whether or not it traded. Same non-blocking rule as trade handlers.
	RegisterBookHandler(handler func()) (unregister func())
}

type TradeHandler func(model.Trade)

type handlerEntry[H any] struct {
	id      uint64
	handler H
}

type orderUseCaseImpl struct {
	orderBookEngine engine.OrderBookEngine
	symbol          string
	ids             *sequence.Sequencer
	logger          *zap.Logger

	// execMu spans book submission and history append so the history follows
	// the order trades were generated in.
	execMu sync.Mutex

	historyMu sync.RWMutex
	history   []model.Trade

	handlersMu  sync.RWMutex
	handlers     []handlerEntry[TradeHandler]
	bookHandlers []handlerEntry[func()]
	nextHandler  uint64
}

type OrderUseCaseOpts struct {
	OrderBookEngine engine.OrderBookEngine
	Symbol          string // empty accepts signals for any symbol
	FirstOrderID    uint64
	Logger          *zap.Logger
}

func NewOrderUseCase(opts OrderUseCaseOpts) OrderUseCase {
	first := opts.FirstOrderID
	if first == 0 {
		first = DefaultFirstOrderID
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderUseCaseImpl{
		orderBookEngine: opts.OrderBookEngine,
		symbol:          opts.Symbol,
		ids:             sequence.New(first),
		logger:          logger.With(zap.String("component", "execution")),
	}
}

func (ou *orderUseCaseImpl) RegisterTradeHandler(handler TradeHandler) func() {
	return register(ou, &ou.handlers, handler)
}

func (ou *orderUseCaseImpl) RegisterBookHandler(handler func()) func() {
	return register(ou, &ou.bookHandlers, handler)
}

// register appends handler to list under handlersMu and returns an
// idempotent unregister.
func register[H any](ou *orderUseCaseImpl, list *[]handlerEntry[H], handler H) func() {
	ou.handlersMu.Lock()
	defer ou.handlersMu.Unlock()
	ou.nextHandler++
	id := ou.nextHandler
	*list = append(*list, handlerEntry[H]{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			ou.handlersMu.Lock()
			defer ou.handlersMu.Unlock()
			for i, h := range *list {
				if h.id == id {
					*list = append((*list)[:i:i], (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

func (ou *orderUseCaseImpl) bookChanged() {
	ou.handlersMu.RLock()
	handlers := ou.bookHandlers
	ou.handlersMu.RUnlock()
	for _, h := range handlers {
		h.handler()
	}
}

func (ou *orderUseCaseImpl) Execute(ctx context.Context, signal model.TradeSignal) ([]model.Trade, error) {
	side, ok := signal.Signal.Side()
	if !ok {
		if signal.Signal != model.SignalNone {
			return nil, fmt.Errorf("%w: %d", model.ErrUnknownSignal, signal.Signal)
		}
		return nil, nil
	}
	if ou.symbol != "" && signal.Symbol != "" && signal.Symbol != ou.symbol {
		return nil, fmt.Errorf("%w: book %s got signal for %s", model.ErrSymbolMismatch, ou.symbol, signal.Symbol)
	}
	price, quantity, err := orderTerms(signal)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trades, orderID, err := ou.submit(func(id model.OrderId) model.Order {
		return model.NewOrder(id, side, price, quantity)
	})
	if err != nil {
		return nil, err
	}
	ou.logger.Debug("signal executed",
		zap.Stringer("signal", signal.Signal),
		zap.Uint64("orderId", uint64(orderID)),
		zap.String("price", price.String()),
		zap.Int64("quantity", int64(quantity)),
		zap.Int("trades", len(trades)),
	)
	return trades, nil
}

func (ou *orderUseCaseImpl) AddOrder(ctx context.Context, side model.Side, price model.Price, quantity model.Quantity) ([]model.Trade, model.OrderId, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return ou.submit(func(id model.OrderId) model.Order {
		return model.NewOrder(id, side, price, quantity)
	})
}

func (ou *orderUseCaseImpl) PlaceOrder(ctx context.Context, order model.Order) ([]model.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ou.execMu.Lock()
	defer ou.execMu.Unlock()

	trades, err := ou.orderBookEngine.AddOrder(order)
	if err != nil {
		return nil, err
	}
	ou.record(trades)
	ou.bookChanged()
	return trades, nil
}

// submit allocates an id, skipping ids already resting in the book, and
// records whatever the book matched.
func (ou *orderUseCaseImpl) submit(build func(model.OrderId) model.Order) ([]model.Trade, model.OrderId, error) {
	ou.execMu.Lock()
	defer ou.execMu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := model.OrderId(ou.ids.Next())
		trades, err := ou.orderBookEngine.AddOrder(build(id))
		if errors.Is(err, model.ErrDuplicateID) {
			ou.logger.Warn("generated order id already rests, skipping", zap.Uint64("orderId", uint64(id)))
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		ou.record(trades)
		ou.bookChanged()
		return trades, id, nil
	}
	return nil, 0, fmt.Errorf("%w: no free order id after %d attempts", model.ErrDuplicateID, maxIDAttempts)
}

// record must run under execMu.
func (ou *orderUseCaseImpl) record(trades []model.Trade) {
	if len(trades) == 0 {
		return
	}
	ou.historyMu.Lock()
	ou.history = append(ou.history, trades...)
	ou.historyMu.Unlock()

	ou.handlersMu.RLock()
	handlers := ou.handlers
	ou.handlersMu.RUnlock()
	for _, tr := range trades {
		for _, h := range handlers {
			h.handler(tr)
		}
	}
}

func (ou *orderUseCaseImpl) CancelOrder(ctx context.Context, orderID model.OrderId) error {
	if err := ou.orderBookEngine.CancelOrder(orderID); err != nil {
		return err
	}
	ou.logger.Debug("order cancelled", zap.Uint64("orderId", uint64(orderID)))
	ou.bookChanged()
	return nil
}

func (ou *orderUseCaseImpl) GetTradeHistory(ctx context.Context) []model.Trade {
	ou.historyMu.RLock()
	defer ou.historyMu.RUnlock()
	out := make([]model.Trade, len(ou.history))
	copy(out, ou.history)
	return out
}

func (ou *orderUseCaseImpl) OrderSize(ctx context.Context) int {
	return ou.orderBookEngine.OrderSize()
}

func (ou *orderUseCaseImpl) GetTopOfBook(ctx context.Context) *model.TopOfBook {
	return ou.orderBookEngine.GetTopOfBook()
}

func (ou *orderUseCaseImpl) GetOrderInfos(ctx context.Context) *model.MarketDepth {
	return ou.orderBookEngine.GetOrderInfos()
}

func (ou *orderUseCaseImpl) GetMarketDepth(ctx context.Context, levels int) *model.MarketDepth {
	return ou.orderBookEngine.GetMarketDepth(levels)
}

func (ou *orderUseCaseImpl) GetBuyOrders(ctx context.Context) []model.Order {
	return ou.orderBookEngine.GetBuyOrders()
}

func (ou *orderUseCaseImpl) GetSellOrders(ctx context.Context) []model.Order {
	return ou.orderBookEngine.GetSellOrders()
}

func (ou *orderUseCaseImpl) MarketView(ctx context.Context) model.MarketView {
	return ou.orderBookEngine.MarketView()
}

func (ou *orderUseCaseImpl) CheckInvariants(ctx context.Context) error {
	return ou.orderBookEngine.CheckInvariants()
}
