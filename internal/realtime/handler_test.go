package realtime

import (
	"errors"
	"fmt"
	"testing"

	"github.com/artspark/backend/internal/generation"
	"github.com/artspark/backend/internal/ledger"
	"github.com/artspark/backend/internal/registry"
	"github.com/artspark/backend/internal/services"
)

// The wire codes mirror the HTTP statuses so clients can share the handling.
func TestTerminalErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"insufficient funds", ledger.ErrInsufficientFunds, "insufficient_funds"},
		{"unknown model", fmt.Errorf("%w: %q", registry.ErrUnknownModel, "x"), "bad_request"},
		{"invalid params", fmt.Errorf("%w: width", registry.ErrInvalidParams), "bad_request"},
		{"invalid prompt", fmt.Errorf("%w: empty", services.ErrInvalidPrompt), "bad_request"},
		{"provider failure", fmt.Errorf("%w: timeout", generation.ErrGenerationFailed), "provider_failed"},
		{"compensation failure", services.ErrCompensationFailed, "internal"},
		{"unexpected", errors.New("boom"), "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := terminalError(tc.err)
			if ev.Type != eventError {
				t.Errorf("event type: got %q, want %q", ev.Type, eventError)
			}
			if ev.Code != tc.wantCode {
				t.Errorf("code: got %q, want %q", ev.Code, tc.wantCode)
			}
			if ev.Message == "" {
				t.Error("message must not be empty")
			}
		})
	}
}
