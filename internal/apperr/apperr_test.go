package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{"nil", nil, "", http.StatusOK},
		{"unknown flow", ErrUnknownFlow, "unknown_flow", http.StatusNotFound},
		{"wrapped checkout", fmt.Errorf("get: %w", ErrCheckoutNotFound), "checkout_not_found", http.StatusNotFound},
		{"conflict", fmt.Errorf("update: %w", ErrStatusMismatch), "status_conflict", http.StatusConflict},
		{"duplicate", ErrDuplicateEvent, "duplicate_event", http.StatusOK},
		{"in progress", ErrInProgress, "in_progress", http.StatusConflict},
		{"dev tools", ErrDevToolsDisabled, "not_found", http.StatusNotFound},
		{"bad signature", fmt.Errorf("wrap: %w", ErrBadSignature), "invalid_signature", http.StatusUnauthorized},
		{"deadline", context.DeadlineExceeded, "timeout", http.StatusGatewayTimeout},
		{"canceled", context.Canceled, "canceled", http.StatusRequestTimeout},
		{"other", errors.New("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.err); got != tc.kind {
				t.Fatalf("Kind = %q, want %q", got, tc.kind)
			}
			if got := HTTPStatus(tc.err); got != tc.status {
				t.Fatalf("HTTPStatus = %d, want %d", got, tc.status)
			}
		})
	}
}
