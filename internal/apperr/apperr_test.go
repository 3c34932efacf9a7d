package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validationf("missing %s", "models"), http.StatusBadRequest},
		{"permission", Permissionf("not yours"), http.StatusForbidden},
		{"not found", NotFoundf("message %d", 4), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", ErrNotFound), http.StatusNotFound},
		{"conflict", ErrConflict, http.StatusConflict},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"upstream", &UpstreamError{Model: "x", Status: 503, Body: "down"}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPublicHidesInternalErrors(t *testing.T) {
	if got := Public(errors.New("sql: connection refused")); got != "internal error" {
		t.Errorf("Public() = %q", got)
	}
	err := Validationf("message is required")
	if got := Public(err); got != err.Error() {
		t.Errorf("Public() = %q, want %q", got, err.Error())
	}
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := &UpstreamError{Model: "x-ai/grok-3-mini-beta", Status: 429, Body: "rate limited"}
	want := "upstream request for x-ai/grok-3-mini-beta failed with status 429: rate limited"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
