package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccountID = "7d5f9a8e-2c41-4b7a-9e0f-3a6b1c2d4e5f"

func TestAccountHandler_Register(t *testing.T) {
	var got services.RegisterInput
	mock := &MockAccountService{
		RegisterFunc: func(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error) {
			got = in
			return &services.AuthResponse{
				AccessToken: "token",
				Account:     &models.AccountDetails{ID: testAccountID, Email: in.Email, Balance: money.FromMinor(10000000)},
			}, nil
		},
	}
	h := NewAccountHandler(mock, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "Correct-horse-1", PIN: "12345",
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	var resp services.AuthResponse
	AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, "token", resp.AccessToken)
	assert.Equal(t, "100000.00", resp.Account.Balance.String())
	assert.Equal(t, "12345", got.PIN)
}

func TestAccountHandler_RegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"short pin", RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "Correct-horse-1", PIN: "1234"}},
		{"non-numeric pin", RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "Correct-horse-1", PIN: "12a45"}},
		{"bad email", RegisterRequest{Name: "Ada", Email: "not-an-email", Password: "Correct-horse-1", PIN: "12345"}},
		{"unknown field", map[string]string{"name": "Ada", "role": "admin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewAccountHandler(&MockAccountService{
				RegisterFunc: func(context.Context, services.RegisterInput) (*services.AuthResponse, error) {
					called = true
					return nil, nil
				},
			}, nil, nil)

			w := httptest.NewRecorder()
			h.Register(w, NewTestRequest(t, http.MethodPost, "/auth/register", tt.body))

			AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
			assert.False(t, called)
		})
	}
}

func TestAccountHandler_RegisterDuplicate(t *testing.T) {
	h := NewAccountHandler(&MockAccountService{
		RegisterFunc: func(context.Context, services.RegisterInput) (*services.AuthResponse, error) {
			return nil, models.ErrConflict
		},
	}, nil, nil)

	w := httptest.NewRecorder()
	h.Register(w, NewTestRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "Correct-horse-1", PIN: "12345",
	}))

	AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

func TestAccountHandler_LoginFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown email", models.ErrNotFound, http.StatusUnauthorized, "unauthorized"},
		{"wrong password", models.ErrInvalidCredential, http.StatusUnauthorized, "unauthorized"},
		{"locked", &models.LockedError{Remaining: 30 * time.Minute}, http.StatusLocked, "account_locked"},
		{"circuit open", fmt.Errorf("login: %w", models.ErrServiceUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"store failure", fmt.Errorf("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAccountHandler(&MockAccountService{
				LoginFunc: func(context.Context, string, string) (*services.AuthResponse, error) {
					return nil, tt.err
				},
			}, nil, nil)

			w := httptest.NewRecorder()
			h.Login(w, NewTestRequest(t, http.MethodPost, "/auth/login", LoginRequest{Email: "ada@example.com", Password: "wrong"}))

			AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestAccountHandler_LoginUnknownEmailLooksLikeWrongPassword(t *testing.T) {
	delay := auth.NewFailureDelay(40*time.Millisecond, 0)
	respond := func(err error) (*httptest.ResponseRecorder, time.Duration) {
		h := NewAccountHandler(&MockAccountService{
			LoginFunc: func(context.Context, string, string) (*services.AuthResponse, error) {
				return nil, err
			},
		}, delay, nil)
		start := time.Now()
		w := httptest.NewRecorder()
		h.Login(w, NewTestRequest(t, http.MethodPost, "/auth/login", LoginRequest{Email: "ada@example.com", Password: "wrong"}))
		return w, time.Since(start)
	}

	unknown, unknownTook := respond(models.ErrNotFound)
	wrong, wrongTook := respond(models.ErrInvalidCredential)

	assert.Equal(t, wrong.Code, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
	assert.GreaterOrEqual(t, unknownTook, 40*time.Millisecond)
	assert.GreaterOrEqual(t, wrongTook, 40*time.Millisecond)
}

func TestAccountHandler_LoginLockedReportsRetry(t *testing.T) {
	h := NewAccountHandler(&MockAccountService{
		LoginFunc: func(context.Context, string, string) (*services.AuthResponse, error) {
			return nil, &models.LockedError{Remaining: 19*time.Minute + time.Second}
		},
	}, nil, nil)

	w := httptest.NewRecorder()
	h.Login(w, NewTestRequest(t, http.MethodPost, "/auth/login", LoginRequest{Email: "ada@example.com", Password: "wrong"}))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, 20, resp.RetryAfterMinutes)
	assert.Equal(t, "1200", w.Header().Get("Retry-After"))
}

func TestAccountHandler_ForgetPassword(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		h := NewAccountHandler(&MockAccountService{}, nil, nil)
		w := httptest.NewRecorder()
		h.ForgetPassword(w, NewTestRequest(t, http.MethodPost, "/auth/forget-password", ForgetPasswordRequest{PIN: "12345", NewPassword: "Another-horse-2"}))
		AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("uses the caller's account", func(t *testing.T) {
		var gotID, gotPIN string
		h := NewAccountHandler(&MockAccountService{
			ResetPasswordFunc: func(_ context.Context, accountID, pin, _ string) error {
				gotID, gotPIN = accountID, pin
				return nil
			},
		}, nil, nil)

		req := WithAuthContext(NewTestRequest(t, http.MethodPost, "/auth/forget-password", ForgetPasswordRequest{PIN: "12345", NewPassword: "Another-horse-2"}), testAccountID, "ada@example.com")
		w := httptest.NewRecorder()
		h.ForgetPassword(w, req)

		AssertJSONResponse(t, w, http.StatusOK, nil)
		assert.Equal(t, testAccountID, gotID)
		assert.Equal(t, "12345", gotPIN)
	})

	t.Run("wrong pin", func(t *testing.T) {
		h := NewAccountHandler(&MockAccountService{
			ResetPasswordFunc: func(context.Context, string, string, string) error { return models.ErrInvalidPIN },
		}, nil, nil)

		req := WithAuthContext(NewTestRequest(t, http.MethodPost, "/auth/forget-password", ForgetPasswordRequest{PIN: "54321", NewPassword: "Another-horse-2"}), testAccountID, "ada@example.com")
		w := httptest.NewRecorder()
		h.ForgetPassword(w, req)

		AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	})
}

func TestAccountHandler_ForgetPIN(t *testing.T) {
	h := NewAccountHandler(&MockAccountService{
		ResetPINFunc: func(_ context.Context, _, password, newPIN string) error {
			if password != "Correct-horse-1" {
				return models.ErrInvalidCredential
			}
			return nil
		},
	}, nil, nil)

	req := WithAuthContext(NewTestRequest(t, http.MethodPost, "/auth/forget-pin", ForgetPINRequest{Password: "Correct-horse-1", NewPIN: "67890"}), testAccountID, "ada@example.com")
	w := httptest.NewRecorder()
	h.ForgetPIN(w, req)
	AssertJSONResponse(t, w, http.StatusOK, nil)

	req = WithAuthContext(NewTestRequest(t, http.MethodPost, "/auth/forget-pin", ForgetPINRequest{Password: "Correct-horse-1", NewPIN: "678"}), testAccountID, "ada@example.com")
	w = httptest.NewRecorder()
	h.ForgetPIN(w, req)
	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestAccountHandler_Details(t *testing.T) {
	h := NewAccountHandler(&MockAccountService{
		DetailsFunc: func(_ context.Context, accountID string) (*models.AccountDetails, error) {
			return &models.AccountDetails{ID: accountID, Name: "Ada", Balance: money.FromMinor(12345)}, nil
		},
	}, nil, nil)

	req := WithAuthContext(httptest.NewRequest(http.MethodGet, "/auth/details", nil), testAccountID, "ada@example.com")
	w := httptest.NewRecorder()
	h.Details(w, req)

	var body map[string]interface{}
	AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, testAccountID, body["id"])
	assert.Equal(t, "123.45", body["balance"])
	assert.NotContains(t, body, "password_hash")
}
