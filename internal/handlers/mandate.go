package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/go-chi/chi/v5"
)

// MandateServiceInterface defines the mandate operations the handler needs
type MandateServiceInterface interface {
	Create(ctx context.Context, in services.CreateMandateInput) (*models.Mandate, error)
	UpdateStatus(ctx context.Context, callerID, mandateID string, status models.MandateStatus, reason string) (*models.Mandate, error)
	Events(ctx context.Context, callerID, mandateID string) ([]*models.MandateEvent, error)
	List(ctx context.Context, callerID string) ([]*models.Mandate, error)
}

// MandateHandler handles standing payment mandates
type MandateHandler struct {
	service MandateServiceInterface
	logger  *slog.Logger
}

func NewMandateHandler(service MandateServiceInterface, logger *slog.Logger) *MandateHandler {
	return &MandateHandler{service: service, logger: logger}
}

// CreateMandateRequest represents a new mandate from the caller
type CreateMandateRequest struct {
	ReceiverID string           `json:"receiver_id" validate:"required,uuid"`
	Amount     money.Amount     `json:"amount" validate:"gt=0"`
	Frequency  models.Frequency `json:"frequency" validate:"required,oneof=2min daily weekly monthly yearly asNeeded"`
	StartDate  time.Time        `json:"start_date"`
	EndDate    *time.Time       `json:"end_date,omitempty"`
}

// UpdateMandateStatusRequest moves a mandate out of active
type UpdateMandateStatusRequest struct {
	Status models.MandateStatus `json:"status" validate:"required,oneof=paused cancelled expired"`
	Reason string               `json:"reason" validate:"max=500"`
}

// MandateEventsResponse is a mandate's audit trail in execution order
type MandateEventsResponse struct {
	Events []*models.MandateEvent `json:"events"`
	Total  int                    `json:"total"`
}

// ListMandatesResponse lists the mandates the caller pays out of
type ListMandatesResponse struct {
	Mandates []*models.Mandate `json:"mandates"`
	Total    int               `json:"total"`
}

// Create registers a mandate paying out of the caller's account
// @Summary Create a mandate
// @Accept json
// @Param request body CreateMandateRequest true "Mandate request"
// @Produce json
// @Success 201 {object} models.Mandate
// @Router /mandate/create [post]
func (h *MandateHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateMandateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	mandate, err := h.service.Create(r.Context(), services.CreateMandateInput{
		SenderID:   claims.AccountID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
		Frequency:  req.Frequency,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, mandate)
}

// UpdateStatus pauses, cancels or expires one of the caller's mandates
// @Summary Change mandate status
// @Param mandateId path string true "Mandate ID"
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /mandate/status/{mandateId} [patch]
func (h *MandateHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req UpdateMandateStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	mandate, err := h.service.UpdateStatus(r.Context(), claims.AccountID, chi.URLParam(r, "mandateId"), req.Status, req.Reason)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, mandate)
}

// Events returns a mandate's audit trail
// @Param mandateId path string true "Mandate ID"
// @Router /mandate/events/{mandateId} [get]
func (h *MandateHandler) Events(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	events, err := h.service.Events(r.Context(), claims.AccountID, chi.URLParam(r, "mandateId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if events == nil {
		events = []*models.MandateEvent{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, MandateEventsResponse{Events: events, Total: len(events)})
}

// List returns the caller's mandates
// @Router /mandate [get]
func (h *MandateHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	mandates, err := h.service.List(r.Context(), claims.AccountID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if mandates == nil {
		mandates = []*models.Mandate{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListMandatesResponse{Mandates: mandates, Total: len(mandates)})
}
