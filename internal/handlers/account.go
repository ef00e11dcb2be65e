package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
)

// AccountServiceInterface defines the account operations the handler needs
type AccountServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error)
	Login(ctx context.Context, email, password string) (*services.AuthResponse, error)
	ResetPassword(ctx context.Context, accountID, pin, newPassword string) error
	ResetPIN(ctx context.Context, accountID, password, newPIN string) error
	Details(ctx context.Context, accountID string) (*models.AccountDetails, error)
}

// AccountHandler handles registration, login and credential resets
type AccountHandler struct {
	service AccountServiceInterface
	delay   *auth.FailureDelay
	logger  *slog.Logger
}

// NewAccountHandler creates a new AccountHandler. delay may be nil.
func NewAccountHandler(service AccountServiceInterface, delay *auth.FailureDelay, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		service: service,
		delay:   delay,
		logger:  logger,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	PIN      string `json:"pin" validate:"required,len=5,numeric"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ForgetPasswordRequest sets a new password, proven by the payment PIN
type ForgetPasswordRequest struct {
	PIN         string `json:"pin" validate:"required,len=5,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// ForgetPINRequest sets a new PIN, proven by the password
type ForgetPINRequest struct {
	Password string `json:"password" validate:"required"`
	NewPIN   string `json:"new_pin" validate:"required,len=5,numeric"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// Register opens a new account
// @Summary Register an account
// @Accept json
// @Param request body RegisterRequest true "Registration request"
// @Produce json
// @Success 201 {object} services.AuthResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /auth/register [post]
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		PIN:      req.PIN,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Email already registered")
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// Login authenticates with email and password
// @Summary Log in
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 423 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// Unknown email and wrong password must be indistinguishable.
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidCredential) {
			h.delay.PadFrom(r.Context(), start)
			pkghttp.WriteUnauthorized(w, "Invalid credentials")
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ForgetPassword replaces the caller's password
// @Summary Reset password with PIN
// @Router /auth/forget-password [post]
func (h *AccountHandler) ForgetPassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ForgetPasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), claims.AccountID, req.PIN, req.NewPassword); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}

// ForgetPIN replaces the caller's payment PIN
// @Summary Reset PIN with password
// @Router /auth/forget-pin [post]
func (h *AccountHandler) ForgetPIN(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ForgetPINRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.ResetPIN(r.Context(), claims.AccountID, req.Password, req.NewPIN); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "PIN updated"})
}

// Details returns the caller's account
// @Summary Account details
// @Produce json
// @Success 200 {object} models.AccountDetails
// @Router /auth/details [get]
func (h *AccountHandler) Details(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	details, err := h.service.Details(r.Context(), claims.AccountID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, details)
}
