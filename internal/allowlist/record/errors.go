package record

import "errors"

// Predefined error types for record parsing failures.
var (
	ErrBadAddress = errors.New("invalid address")
	ErrBadBalance = errors.New("invalid balance")
)
