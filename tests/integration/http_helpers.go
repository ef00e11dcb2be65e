package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/app"
	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/config"
	"github.com/BradenHooton/autopay/internal/database"
	"github.com/BradenHooton/autopay/internal/events"
	"github.com/BradenHooton/autopay/internal/handlers"
	middlewareCustom "github.com/BradenHooton/autopay/internal/middleware"
	"github.com/BradenHooton/autopay/internal/repositories"
	"github.com/BradenHooton/autopay/internal/routes"
	"github.com/BradenHooton/autopay/internal/services"
	pkgauth "github.com/BradenHooton/autopay/pkg/auth"
	pkglogger "github.com/BradenHooton/autopay/pkg/logger"
	"github.com/BradenHooton/autopay/pkg/money"
)

// TestServer is the full HTTP stack over a real database
type TestServer struct {
	Server     *httptest.Server
	Dispatcher *admission.Dispatcher
	Ledger     *services.LedgerService
}

// NewTestServer wires the API the way cmd/api does, with a fast hasher and
// no external event sinks.
func NewTestServer(db *database.DB) *TestServer {
	logger := discardLogger()
	audit := pkglogger.NewAuditLogger(logger)
	publisher := events.NoopPublisher{}

	accountRepo := repositories.NewAccountRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	mandateRepo := repositories.NewMandateRepository(db)
	productRepo := repositories.NewProductRepository(db)

	hasher := pkgauth.NewHasher(testBcryptCost)
	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", "autopay-test", 15*time.Minute)
	dispatcher := admission.NewDispatcher(app.BreakerOptions(config.BreakerConfig{
		Timeout:                  10 * time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             10 * time.Second,
		PaymentResetTimeout:      30 * time.Second,
		RollingWindow:            10 * time.Second,
		MinRequests:              2,
	}), 0, logger)

	verifier := services.NewCredentialVerifier(accountRepo, hasher, services.DefaultLockoutPolicy(), audit, logger)
	ledger := services.NewLedgerService(ledgerRepo, publisher, logger)
	journal := services.NewMandateJournal(mandateRepo, publisher, logger)

	h := routes.Handlers{
		Account: handlers.NewAccountHandler(
			services.NewAccountService(accountRepo, verifier, hasher, tokenManager, dispatcher, money.FromMinor(10000000), logger, audit),
			auth.NewFailureDelay(10*time.Millisecond, 0), logger),
		Payment: handlers.NewPaymentHandler(services.NewPaymentService(accountRepo, ledgerRepo, verifier, ledger, dispatcher, logger, audit), logger),
		Product: handlers.NewProductHandler(services.NewProductService(productRepo, accountRepo, verifier, ledger, dispatcher, logger, audit), logger),
		Mandate: handlers.NewMandateHandler(services.NewMandateService(mandateRepo, accountRepo, journal, dispatcher, logger, audit), logger),
		Health:  handlers.NewHealthHandler(db, dispatcher),
	}

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	routes.RegisterRoutes(router, h, tokenManager,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000},
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000},
	)

	return &TestServer{
		Server:     httptest.NewServer(router),
		Dispatcher: dispatcher,
		Ledger:     ledger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Dispatcher != nil {
		ts.Dispatcher.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractAuth reads the access token and account id from an auth response
func ExtractAuth(resp *http.Response) (accessToken, accountID string, err error) {
	var authResp services.AuthResponse
	if err := ParseJSONResponse(resp, &authResp); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}
	if authResp.Account == nil {
		return "", "", fmt.Errorf("response carried no account")
	}
	return authResp.AccessToken, authResp.Account.ID, nil
}
