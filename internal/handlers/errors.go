package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/autopay/internal/models"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
)

const maxBodyBytes = 1 << 20

// decodeRequest decodes and validates a JSON body into dst. It writes the
// 400 itself and reports false when the body is unusable.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// writeServiceError maps a service error onto its HTTP status. Anything
// outside the domain taxonomy is logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var locked *models.LockedError
	switch {
	case errors.As(err, &locked):
		pkghttp.WriteLocked(w, fmt.Sprintf("Account locked. Try again in %d minutes.", locked.RemainingMinutes()), locked.RemainingMinutes())
	case errors.Is(err, models.ErrInvalidCredential):
		pkghttp.WriteUnauthorized(w, "Invalid credentials")
	case errors.Is(err, models.ErrInvalidPIN):
		pkghttp.WriteUnauthorized(w, "Invalid PIN")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "You cannot act on this resource")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrInvalidTransition):
		pkghttp.WriteConflict(w, "Mandate can no longer change status")
	case errors.Is(err, models.ErrInsufficientFunds):
		pkghttp.WriteUnprocessable(w, "Insufficient funds")
	case errors.Is(err, models.ErrSameAccount):
		pkghttp.WriteBadRequest(w, "Sender and receiver must differ")
	case errors.Is(err, models.ErrInvalidAmount):
		pkghttp.WriteBadRequest(w, "Amount must be positive")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrServiceUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable, retry later")
	default:
		if logger != nil {
			logger.Error("request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
		}
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
