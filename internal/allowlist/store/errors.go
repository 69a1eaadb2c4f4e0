package store

import "errors"

// Predefined error types for the proposal store. Constraint violations
// detected by Postgres are mapped onto these at the store boundary so
// callers never need to inspect a *pgconn.PgError directly.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidPaginationRange = errors.New("per_page must be in [1,100]")
	ErrInvalidAuthorAddress = errors.New("author address failed domain check")
	ErrDuplicateAccount     = errors.New("duplicate account in proposal")
	ErrStorage              = errors.New("storage error")
)
