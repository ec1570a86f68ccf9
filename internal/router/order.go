package router

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Yusufzhafir/hftsim/internal/ingest"
	"github.com/Yusufzhafir/hftsim/internal/usecase/order"
	"github.com/Yusufzhafir/hftsim/pkg/model"
)

type OrderRouter interface {
	Add(w http.ResponseWriter, r *http.Request)
	Cancel(w http.ResponseWriter, r *http.Request)
	Signal(w http.ResponseWriter, r *http.Request)
}

type orderRouterImpl struct {
	usecase order.OrderUseCase
	signals SignalSubmitter
}

func NewOrderRouter(usecase order.OrderUseCase, signals SignalSubmitter) OrderRouter {
	return &orderRouterImpl{
		usecase: usecase,
		signals: signals,
	}
}

type orderResponse struct {
	OrderID model.OrderId `json:"orderId,omitempty"`
	Trades  []model.Trade `json:"trades,omitempty"`
	Status  string        `json:"status"` // "accepted", "rejected", "ignored"
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`
}

func (or *orderRouterImpl) Add(w http.ResponseWriter, r *http.Request) {
	type AddOrderRequest struct {
		ID       model.OrderId  `json:"id,omitempty"` // zero lets the server assign one
		Side     *model.Side    `json:"side"`
		Price    model.Price    `json:"price"`
		Quantity model.Quantity `json:"quantity"`
	}
	req, err := decodeJSON[AddOrderRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.Side == nil {
		err := fmt.Errorf("%w: side is required", model.ErrUnknownSide)
		writeJSON(w, statusFor(err), orderResponse{
			OrderID: req.ID,
			Status:  "rejected",
			Code:    errorCode(err),
			Message: err.Error(),
		})
		return
	}
	side := *req.Side

	var (
		trades  []model.Trade
		orderID = req.ID
	)
	if req.ID != 0 {
		trades, err = or.usecase.PlaceOrder(r.Context(), model.NewOrder(req.ID, side, req.Price, req.Quantity))
	} else {
		trades, orderID, err = or.usecase.AddOrder(r.Context(), side, req.Price, req.Quantity)
	}
	if err != nil {
		writeJSON(w, statusFor(err), orderResponse{
			OrderID: req.ID,
			Status:  "rejected",
			Code:    errorCode(err),
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		OrderID: orderID,
		Trades:  trades,
		Status:  "accepted",
	})
}

func (or *orderRouterImpl) Cancel(w http.ResponseWriter, r *http.Request) {
	type CancelOrderRequest struct {
		ID model.OrderId `json:"id"`
	}

	req, err := decodeJSON[CancelOrderRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == 0 {
		writeJSONError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}

	if err := or.usecase.CancelOrder(r.Context(), req.ID); err != nil {
		writeJSON(w, statusFor(err), orderResponse{
			OrderID: req.ID,
			Status:  "rejected",
			Code:    errorCode(err),
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		OrderID: req.ID,
		Status:  "accepted",
	})
}

// Signal accepts the same JSON as the signal feed.
func (or *orderRouterImpl) Signal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	sig, err := ingest.DecodeSignal(body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	var trades []model.Trade
	if or.signals != nil {
		trades, err = or.signals.Submit(r.Context(), sig)
	} else {
		trades, err = or.usecase.Execute(r.Context(), sig)
	}
	if err != nil {
		writeJSON(w, statusFor(err), orderResponse{
			Status:  "rejected",
			Code:    errorCode(err),
			Message: err.Error(),
		})
		return
	}

	status := "accepted"
	if sig.Signal == model.SignalNone {
		status = "ignored"
	}
	writeJSON(w, http.StatusOK, orderResponse{
		Trades: trades,
		Status: status,
	})
}
