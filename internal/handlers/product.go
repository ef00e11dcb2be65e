package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/go-chi/chi/v5"
)

// ProductServiceInterface defines the product operations the handler needs
type ProductServiceInterface interface {
	SaveProduct(ctx context.Context, ownerID, code, name string, price money.Amount) (*models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, ownerID string) ([]*models.Product, error)
	PayForProduct(ctx context.Context, buyerID, productID, password, pin string) (*services.TransferResult, error)
}

// ProductHandler handles the product catalogue and purchases
type ProductHandler struct {
	service ProductServiceInterface
	logger  *slog.Logger
}

func NewProductHandler(service ProductServiceInterface, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{service: service, logger: logger}
}

// SaveProductRequest creates or re-prices a product by its code
type SaveProductRequest struct {
	Code  string       `json:"code" validate:"required,max=64"`
	Name  string       `json:"name" validate:"omitempty,max=200"`
	Price money.Amount `json:"price" validate:"gt=0"`
}

// PayForProductRequest carries both credentials a purchase needs
type PayForProductRequest struct {
	Password string `json:"password" validate:"required"`
	PIN      string `json:"pin" validate:"required,len=5,numeric"`
}

// ListProductsResponse lists the caller's products
type ListProductsResponse struct {
	Products []*models.Product `json:"products"`
	Total    int               `json:"total"`
}

// Save creates or re-prices one of the caller's products
// @Summary Save a product
// @Router /products [post]
func (h *ProductHandler) Save(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req SaveProductRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	product, err := h.service.SaveProduct(r.Context(), claims.AccountID, req.Code, req.Name, req.Price)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, product)
}

// List returns the caller's products
// @Router /products [get]
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	products, err := h.service.ListProducts(r.Context(), claims.AccountID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if products == nil {
		products = []*models.Product{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListProductsResponse{Products: products, Total: len(products)})
}

// Get returns any product by id
// @Router /products/{id} [get]
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, product)
}

// Pay buys a product, moving its price from the caller to the owner
// @Summary Pay for a product
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 422 {object} pkghttp.ErrorResponse
// @Router /products/{id}/pay [post]
func (h *ProductHandler) Pay(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAccountFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req PayForProductRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	result, err := h.service.PayForProduct(r.Context(), claims.AccountID, chi.URLParam(r, "id"), req.Password, req.PIN)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, result)
}
