package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/go-chi/chi/v5"
)

// PaymentServiceInterface defines the payment operations the handler needs
type PaymentServiceInterface interface {
	InitiatePayment(ctx context.Context, in services.PaymentInput) (*services.TransferResult, error)
	TransactionLogs(ctx context.Context, callerID, accountID string, limit, offset int) ([]*models.Transaction, error)
}

// PaymentHandler handles interactive payments and transaction logs
type PaymentHandler struct {
	service PaymentServiceInterface
	logger  *slog.Logger
}

func NewPaymentHandler(service PaymentServiceInterface, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

// InitiatePaymentRequest represents a PIN-authorized transfer. The sender
// defaults to the caller.
type InitiatePaymentRequest struct {
	SenderID   string       `json:"sender_id" validate:"omitempty,uuid"`
	ReceiverID string       `json:"receiver_id" validate:"required,uuid"`
	Amount     money.Amount `json:"amount" validate:"gt=0"`
	PIN        string       `json:"pin" validate:"required,len=5,numeric"`
}

// TransactionLogsResponse lists an account's transactions, newest first
type TransactionLogsResponse struct {
	Transactions []*models.Transaction `json:"transactions"`
	Total        int                   `json:"total"`
}

// Initiate transfers funds from the caller to another account
// @Summary Initiate a payment
// @Accept json
// @Param request body InitiatePaymentRequest true "Payment request"
// @Produce json
// @Success 201 {object} services.TransferResult
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 422 {object} pkghttp.ErrorResponse
// @Failure 423 {object} pkghttp.ErrorResponse
// @Router /payment/initiate [post]
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req InitiatePaymentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.SenderID == "" {
		req.SenderID = claims.AccountID
	}

	result, err := h.service.InitiatePayment(r.Context(), services.PaymentInput{
		CallerID:   claims.AccountID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
		PIN:        req.PIN,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, result)
}

// Logs lists the transactions of the caller's account
// @Summary Transaction logs
// @Param userId path string true "Account ID"
// @Param limit query int false "Limit (default 50)"
// @Param offset query int false "Offset (default 0)"
// @Router /payment/logs/{userId} [get]
func (h *PaymentHandler) Logs(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, offset := 0, 0
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 || v > 100 {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
		limit = v
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		v, err := strconv.Atoi(o)
		if err != nil || v < 0 {
			pkghttp.WriteBadRequest(w, "Invalid offset parameter")
			return
		}
		offset = v
	}

	txns, err := h.service.TransactionLogs(r.Context(), claims.AccountID, chi.URLParam(r, "userId"), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if txns == nil {
		txns = []*models.Transaction{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, TransactionLogsResponse{Transactions: txns, Total: len(txns)})
}
