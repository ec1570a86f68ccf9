package router

import (
	"context"
	"net/http"
	"time"

	"github.com/Yusufzhafir/hftsim/internal/pipeline"
	"github.com/Yusufzhafir/hftsim/internal/router/middleware"
	"github.com/Yusufzhafir/hftsim/internal/usecase/order"
	"github.com/Yusufzhafir/hftsim/internal/websocket"
	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

func logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)
			logger.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Int("bytes", sw.n),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}

// Cors wraps the mux for browser dashboards. Empty origins allow any.
func Cors(next http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}).Handler(next)
}

// SignalSubmitter runs a signal through simulated latency into execution.
type SignalSubmitter interface {
	Submit(ctx context.Context, sig model.TradeSignal) ([]model.Trade, error)
	Stats() pipeline.Stats
}

// GET /api/v1/book?depth=10
func bindBook(mux *http.ServeMux, uc order.OrderUseCase, log func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/book", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		depth, err := queryInt(r, "depth", 0)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, uc.GetMarketDepth(r.Context(), depth))
	})))
	mux.Handle("GET /api/v1/book/top", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, uc.GetTopOfBook(r.Context()))
	})))
	mux.Handle("GET /api/v1/book/orders", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"buy":   uc.GetBuyOrders(r.Context()),
			"sell":  uc.GetSellOrders(r.Context()),
			"count": uc.OrderSize(r.Context()),
		})
	})))
	mux.Handle("GET /api/v1/book/market", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, uc.MarketView(r.Context()))
	})))
	mux.Handle("GET /api/v1/book/invariants", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := uc.CheckInvariants(r.Context()); err != nil {
			writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})))
	mux.Handle("GET /api/v1/trades", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, uc.GetTradeHistory(r.Context()))
	})))
}

func bindOrder(mux *http.ServeMux, uc order.OrderUseCase, signals SignalSubmitter, tokenMaker *middleware.JWTMaker, log func(http.Handler) http.Handler) {
	auth := middleware.AuthMiddleware(tokenMaker, middleware.RoleTrader, middleware.RoleAdmin)
	orderRouter := NewOrderRouter(uc, signals)
	mux.Handle("POST /api/v1/order/add", log(auth(http.HandlerFunc(orderRouter.Add))))
	mux.Handle("DELETE /api/v1/order/cancel", log(auth(http.HandlerFunc(orderRouter.Cancel))))
	mux.Handle("POST /api/v1/signal", log(auth(http.HandlerFunc(orderRouter.Signal))))
	if signals != nil {
		mux.Handle("GET /api/v1/stats", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, signals.Stats())
		})))
	}
}

type BindRouterOpts struct {
	ServerRouter *http.ServeMux
	OrderUseCase order.OrderUseCase
	Signals      SignalSubmitter // nil executes signals without latency
	TokenMaker   *middleware.JWTMaker
	Hub          *websocket.Hub
	Logger       *zap.Logger
}

func BindRouter(opts BindRouterOpts) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logging(logger.With(zap.String("component", "http")))

	bindBook(opts.ServerRouter, opts.OrderUseCase, log)
	bindOrder(opts.ServerRouter, opts.OrderUseCase, opts.Signals, opts.TokenMaker, log)
	if opts.Hub != nil {
		opts.ServerRouter.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(opts.Hub, w, r)
		})
	}

	opts.ServerRouter.Handle("GET /healthz", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 200,
			"health": "healthy",
		})
	})))
}
