package service

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-transactions/app/provider"
	"github.com/vibast-solutions/ms-go-transactions/app/state"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
	ErrRequestInProgress   = errors.New("request with this idempotency key is already in progress")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// errorResponse maps a domain error to its client-facing status code and
// stable error code. ok=false means the error is internal: it must not
// be cached in the idempotency ledger and surfaces as a 5xx.
func errorResponse(err error) (statusCode int, resp *types.ErrorResponse, ok bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, state.ErrInvalidAmount):
		return http.StatusBadRequest, &types.ErrorResponse{Error: err.Error(), Code: "validation_error"}, true
	case errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict, &types.ErrorResponse{Error: err.Error(), Code: "conflict"}, true
	case errors.Is(err, ErrRequestInProgress):
		return http.StatusConflict, &types.ErrorResponse{Error: err.Error(), Code: "request_in_progress"}, true
	case errors.Is(err, ErrTransactionNotFound):
		return http.StatusNotFound, &types.ErrorResponse{Error: err.Error(), Code: "not_found"}, true
	case errors.Is(err, state.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, &types.ErrorResponse{Error: err.Error(), Code: "invalid_state_transition"}, true
	case errors.Is(err, provider.ErrDeclined):
		return http.StatusPaymentRequired, &types.ErrorResponse{Error: err.Error(), Code: "gateway_declined"}, true
	default:
		return 0, nil, false
	}
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
