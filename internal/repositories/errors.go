package repositories

import "errors"

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientStock is returned by a guarded stock decrement.
	ErrInsufficientStock = errors.New("insufficient stock")
)
