package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/models"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP_RejectsOverLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 2})(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitByIP_IgnoresSpoofedForwardedFor(t *testing.T) {
	ipConfig, err := pkghttp.NewIPConfig([]string{"10.0.0.1"})
	require.NoError(t, err)
	handler := RateLimitByIP(RateLimitConfig{
		RequestsPerMinute: 1,
		IPConfig:          ipConfig,
	})(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	first.RemoteAddr = "203.0.113.7:4000"
	first.Header.Set("X-Forwarded-For", "198.51.100.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A new forwarded address from an untrusted peer is still the same client.
	second := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	second.RemoteAddr = "203.0.113.7:4000"
	second.Header.Set("X-Forwarded-For", "198.51.100.2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitByAccount_SeparatesAccounts(t *testing.T) {
	handler := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	send := func(accountID string) int {
		req := httptest.NewRequest(http.MethodPost, "/payments/initiate", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		req = req.WithContext(auth.WithAccount(req.Context(), &models.TokenClaims{AccountID: accountID, Type: "access"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("acct-a"))
	assert.Equal(t, http.StatusOK, send("acct-b"))
	assert.Equal(t, http.StatusTooManyRequests, send("acct-a"))
}

func TestRateLimitByAccount_FallsBackToIP(t *testing.T) {
	handler := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	for _, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code)
	}
}
