package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrUnknownFlow      = errors.New("unknown callback flow")
	ErrCheckoutNotFound = errors.New("checkout not found")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrStatusMismatch   = errors.New("status mismatch/conditional failed")
	ErrDuplicateEvent   = errors.New("webhook event already processed")
	ErrInProgress       = errors.New("request already in progress")
	ErrDevToolsDisabled = errors.New("dev tools disabled")
	ErrBadSignature     = errors.New("webhook signature mismatch")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrUnknownFlow):
		return "unknown_flow"

	case errors.Is(err, ErrCheckoutNotFound):
		return "checkout_not_found"

	case errors.Is(err, ErrPlanNotFound):
		return "plan_not_found"

	case errors.Is(err, ErrStatusMismatch):
		return "status_conflict"

	case errors.Is(err, ErrDuplicateEvent):
		return "duplicate_event"

	case errors.Is(err, ErrInProgress):
		return "in_progress"

	case errors.Is(err, ErrDevToolsDisabled):
		return "not_found"

	case errors.Is(err, ErrBadSignature):
		return "invalid_signature"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrUnknownFlow),
		errors.Is(err, ErrCheckoutNotFound),
		errors.Is(err, ErrPlanNotFound),
		errors.Is(err, ErrDevToolsDisabled):
		return http.StatusNotFound

	case errors.Is(err, ErrStatusMismatch),
		errors.Is(err, ErrInProgress):
		return http.StatusConflict

	case errors.Is(err, ErrDuplicateEvent):
		return http.StatusOK

	case errors.Is(err, ErrBadSignature):
		return http.StatusUnauthorized

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}
