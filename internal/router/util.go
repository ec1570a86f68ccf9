package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Yusufzhafir/hftsim/pkg/model"
)

const maxBody = int64(1 << 20) // 1 MiB

// decodeJSON reads one JSON value into T, rejecting unknown fields and trailing data.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var zero T

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req T
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return zero, fmt.Errorf("%w: empty body", model.ErrMalformedMessage)
		}
		return zero, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}
	if dec.More() {
		return zero, fmt.Errorf("%w: multiple JSON values in body", model.ErrMalformedMessage)
	}
	return req, nil
}

// queryInt reads a non-negative integer query parameter, def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

type errorResp struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResp{
		Error:   http.StatusText(status),
		Status:  status,
		Code:    errorCode(err),
		Message: err.Error(),
	})
}

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{model.ErrNotFound, "not_found", http.StatusNotFound},
	{model.ErrDuplicateID, "duplicate_id", http.StatusConflict},
	{model.ErrMalformedMessage, "malformed", http.StatusBadRequest},
	{model.ErrInvalidQuantity, "invalid_quantity", http.StatusUnprocessableEntity},
	{model.ErrInvalidPrice, "invalid_price", http.StatusUnprocessableEntity},
	{model.ErrUnknownSide, "unknown_side", http.StatusUnprocessableEntity},
	{model.ErrUnknownSignal, "unknown_signal", http.StatusUnprocessableEntity},
	{model.ErrSymbolMismatch, "symbol_mismatch", http.StatusUnprocessableEntity},
	{context.Canceled, "cancelled", http.StatusServiceUnavailable},
	{context.DeadlineExceeded, "timeout", http.StatusServiceUnavailable},
}

func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return ""
}

// statusFor maps a usecase error onto an HTTP status.
func statusFor(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
