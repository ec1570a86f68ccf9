package model

import "errors"

var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrDuplicateID        = errors.New("duplicate order id")
	ErrNotFound           = errors.New("order not found")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownSide        = errors.New("unknown side")
	ErrUnknownSignal      = errors.New("unknown signal")
	ErrSymbolMismatch     = errors.New("symbol mismatch")
	ErrInvariantViolation = errors.New("order book invariant violated")
)
