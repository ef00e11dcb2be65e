package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"locked", &models.LockedError{Remaining: 90 * time.Second}, http.StatusLocked, "account_locked"},
		{"bad password", models.ErrInvalidCredential, http.StatusUnauthorized, "unauthorized"},
		{"bad pin", models.ErrInvalidPIN, http.StatusUnauthorized, "unauthorized"},
		{"no token", models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"not owner", models.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"missing", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"duplicate", models.ErrConflict, http.StatusConflict, "conflict"},
		{"terminal mandate", models.ErrInvalidTransition, http.StatusConflict, "conflict"},
		{"insufficient funds", models.ErrInsufficientFunds, http.StatusUnprocessableEntity, "unprocessable"},
		{"same account", models.ErrSameAccount, http.StatusBadRequest, "bad_request"},
		{"zero amount", models.ErrInvalidAmount, http.StatusBadRequest, "bad_request"},
		{"wrapped bad request", fmt.Errorf("%w: unknown frequency", models.ErrBadRequest), http.StatusBadRequest, "bad_request"},
		{"breaker open", fmt.Errorf("payment: %w", models.ErrServiceUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "service_unavailable"},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, "service_unavailable"},
		{"unknown", errors.New("pq: relation does not exist"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)

			writeServiceError(w, r, services.NewTestLogger(), tt.err)

			AssertErrorResponse(t, w, tt.status, tt.code)
			assert.NotContains(t, w.Body.String(), "relation", "internal detail leaked")
		})
	}
}

func TestWriteServiceError_LockedRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)

	writeServiceError(w, r, nil, fmt.Errorf("login: %w", &models.LockedError{Remaining: 19*time.Minute + 30*time.Second}))

	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, "1200", w.Header().Get("Retry-After"))
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 20, resp.RetryAfterMinutes)
	assert.Contains(t, resp.Message, "20 minutes")
}
