package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/andrey/allowlist-attestor/internal/allowlist/merkle"
	"github.com/andrey/allowlist-attestor/internal/allowlist/record"
	"github.com/andrey/allowlist-attestor/internal/allowlist/store"
)

// ErrorResponse is the structure of every error body this API returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// writeErrorResponse writes a structured error response, mapping the error
// taxonomy of spec.md §7 onto HTTP status codes.
func writeErrorResponse(w http.ResponseWriter, err error, message string) {
	w.Header().Set("Content-Type", "application/json")

	var errResponse ErrorResponse
	errResponse.Error = message
	errResponse.Details = err.Error()

	switch {
	case isInputError(err):
		errResponse.Code = http.StatusBadRequest
		w.WriteHeader(http.StatusBadRequest)
	case isMerkleError(err):
		errResponse.Code = http.StatusBadRequest
		w.WriteHeader(http.StatusBadRequest)
	case isNotFoundError(err):
		errResponse.Code = http.StatusBadRequest
		w.WriteHeader(http.StatusBadRequest)
	case isDomainRejectedStorageError(err):
		errResponse.Code = http.StatusBadRequest
		w.WriteHeader(http.StatusBadRequest)
	default:
		errResponse.Code = http.StatusInternalServerError
		w.WriteHeader(http.StatusInternalServerError)
	}

	json.NewEncoder(w).Encode(errResponse)
}

func isInputError(err error) bool {
	return errors.Is(err, record.ErrBadAddress) ||
		errors.Is(err, record.ErrBadBalance) ||
		errors.Is(err, store.ErrInvalidPaginationRange)
}

func isMerkleError(err error) bool {
	return errors.Is(err, merkle.ErrEmptyAccountsList) ||
		errors.Is(err, merkle.ErrAccountNotFound) ||
		errors.Is(err, merkle.ErrAccountAlreadyExists)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// isDomainRejectedStorageError covers the two store errors spec.md §7
// classifies as 400 rather than 500: a constraint Postgres itself caught.
func isDomainRejectedStorageError(err error) bool {
	return errors.Is(err, store.ErrInvalidAuthorAddress) ||
		errors.Is(err, store.ErrDuplicateAccount)
}
