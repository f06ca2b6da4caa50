package store

import "errors"

// Store-level sentinel errors surfaced to the caller as error-kind wire
// replies by the layer that calls into the store (see internal/protocol).
var (
	ErrInvalidPrice      = errors.New("store: invalid price")
	ErrInsufficientFunds = errors.New("store: insufficient funds")
)
