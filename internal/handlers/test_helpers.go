package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds account claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, accountID, email string) *http.Request {
	claims := &models.TokenClaims{
		AccountID: accountID,
		Email:     email,
		Type:      "access",
	}
	return req.WithContext(auth.WithAccount(req.Context(), claims))
}

// WithURLParams attaches chi route parameters to a request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	RegisterFunc      func(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error)
	LoginFunc         func(ctx context.Context, email, password string) (*services.AuthResponse, error)
	ResetPasswordFunc func(ctx context.Context, accountID, pin, newPassword string) error
	ResetPINFunc      func(ctx context.Context, accountID, password, newPIN string) error
	DetailsFunc       func(ctx context.Context, accountID string) (*models.AccountDetails, error)
}

func (m *MockAccountService) Register(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, in)
	}
	return nil, nil
}

func (m *MockAccountService) Login(ctx context.Context, email, password string) (*services.AuthResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil, nil
}

func (m *MockAccountService) ResetPassword(ctx context.Context, accountID, pin, newPassword string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, accountID, pin, newPassword)
	}
	return nil
}

func (m *MockAccountService) ResetPIN(ctx context.Context, accountID, password, newPIN string) error {
	if m.ResetPINFunc != nil {
		return m.ResetPINFunc(ctx, accountID, password, newPIN)
	}
	return nil
}

func (m *MockAccountService) Details(ctx context.Context, accountID string) (*models.AccountDetails, error) {
	if m.DetailsFunc != nil {
		return m.DetailsFunc(ctx, accountID)
	}
	return nil, models.ErrNotFound
}

// MockPaymentService implements PaymentServiceInterface for testing
type MockPaymentService struct {
	InitiatePaymentFunc func(ctx context.Context, in services.PaymentInput) (*services.TransferResult, error)
	TransactionLogsFunc func(ctx context.Context, callerID, accountID string, limit, offset int) ([]*models.Transaction, error)
}

func (m *MockPaymentService) InitiatePayment(ctx context.Context, in services.PaymentInput) (*services.TransferResult, error) {
	if m.InitiatePaymentFunc != nil {
		return m.InitiatePaymentFunc(ctx, in)
	}
	return nil, nil
}

func (m *MockPaymentService) TransactionLogs(ctx context.Context, callerID, accountID string, limit, offset int) ([]*models.Transaction, error) {
	if m.TransactionLogsFunc != nil {
		return m.TransactionLogsFunc(ctx, callerID, accountID, limit, offset)
	}
	return nil, nil
}

// MockProductService implements ProductServiceInterface for testing
type MockProductService struct {
	SaveProductFunc   func(ctx context.Context, ownerID, code, name string, price money.Amount) (*models.Product, error)
	GetProductFunc    func(ctx context.Context, id string) (*models.Product, error)
	ListProductsFunc  func(ctx context.Context, ownerID string) ([]*models.Product, error)
	PayForProductFunc func(ctx context.Context, buyerID, productID, password, pin string) (*services.TransferResult, error)
}

func (m *MockProductService) SaveProduct(ctx context.Context, ownerID, code, name string, price money.Amount) (*models.Product, error) {
	if m.SaveProductFunc != nil {
		return m.SaveProductFunc(ctx, ownerID, code, name, price)
	}
	return nil, nil
}

func (m *MockProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockProductService) ListProducts(ctx context.Context, ownerID string) ([]*models.Product, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *MockProductService) PayForProduct(ctx context.Context, buyerID, productID, password, pin string) (*services.TransferResult, error) {
	if m.PayForProductFunc != nil {
		return m.PayForProductFunc(ctx, buyerID, productID, password, pin)
	}
	return nil, nil
}

// MockMandateService implements MandateServiceInterface for testing
type MockMandateService struct {
	CreateFunc       func(ctx context.Context, in services.CreateMandateInput) (*models.Mandate, error)
	UpdateStatusFunc func(ctx context.Context, callerID, mandateID string, status models.MandateStatus, reason string) (*models.Mandate, error)
	EventsFunc       func(ctx context.Context, callerID, mandateID string) ([]*models.MandateEvent, error)
	ListFunc         func(ctx context.Context, callerID string) ([]*models.Mandate, error)
}

func (m *MockMandateService) Create(ctx context.Context, in services.CreateMandateInput) (*models.Mandate, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, in)
	}
	return nil, nil
}

func (m *MockMandateService) UpdateStatus(ctx context.Context, callerID, mandateID string, status models.MandateStatus, reason string) (*models.Mandate, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, callerID, mandateID, status, reason)
	}
	return nil, nil
}

func (m *MockMandateService) Events(ctx context.Context, callerID, mandateID string) ([]*models.MandateEvent, error) {
	if m.EventsFunc != nil {
		return m.EventsFunc(ctx, callerID, mandateID)
	}
	return nil, nil
}

func (m *MockMandateService) List(ctx context.Context, callerID string) ([]*models.Mandate, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, callerID)
	}
	return nil, nil
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(context.Context) error { return m.Err }

// StaticBreakers implements BreakerReporter for testing
type StaticBreakers map[admission.Class]string

func (s StaticBreakers) BreakerStates() map[admission.Class]string { return s }
