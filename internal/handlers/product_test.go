package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/internal/services"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/stretchr/testify/assert"
)

const testProductID = "5e1f2a3b-4c5d-4e6f-8a9b-0c1d2e3f4a5b"

func TestProductHandler_Save(t *testing.T) {
	h := NewProductHandler(&MockProductService{
		SaveProductFunc: func(_ context.Context, ownerID, code, name string, price money.Amount) (*models.Product, error) {
			return &models.Product{ID: testProductID, OwnerID: ownerID, Code: code, Name: name, Price: price}, nil
		},
	}, nil)

	body := map[string]interface{}{"code": "coffee", "name": "Coffee", "price": "3.50"}
	req := WithAuthContext(NewTestRequest(t, http.MethodPost, "/products", body), testAccountID, "ada@example.com")
	w := httptest.NewRecorder()
	h.Save(w, req)

	var product models.Product
	AssertJSONResponse(t, w, http.StatusOK, &product)
	assert.Equal(t, testAccountID, product.OwnerID)
	assert.Equal(t, money.FromMinor(350), product.Price)

	req = WithAuthContext(NewTestRequest(t, http.MethodPost, "/products", map[string]interface{}{"code": "coffee", "price": "-1"}), testAccountID, "ada@example.com")
	w = httptest.NewRecorder()
	h.Save(w, req)
	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestProductHandler_Pay(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusCreated},
		{"own product", models.ErrSameAccount, http.StatusBadRequest},
		{"wrong password", models.ErrInvalidCredential, http.StatusUnauthorized},
		{"insufficient funds", models.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"missing product", models.ErrNotFound, http.StatusNotFound},
		{"circuit open", models.ErrServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotProduct string
			h := NewProductHandler(&MockProductService{
				PayForProductFunc: func(_ context.Context, buyerID, productID, _, _ string) (*services.TransferResult, error) {
					gotProduct = productID
					if tt.err != nil {
						return nil, tt.err
					}
					return &services.TransferResult{Transaction: &models.Transaction{TransactionID: "txn-1"}}, nil
				},
			}, nil)

			req := NewTestRequest(t, http.MethodPost, "/products/"+testProductID+"/pay", PayForProductRequest{Password: "Correct-horse-1", PIN: "12345"})
			req = WithURLParams(WithAuthContext(req, testAccountID, "ada@example.com"), map[string]string{"id": testProductID})
			w := httptest.NewRecorder()
			h.Pay(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, testProductID, gotProduct)
		})
	}
}

func TestProductHandler_GetAndList(t *testing.T) {
	h := NewProductHandler(&MockProductService{
		GetProductFunc: func(_ context.Context, id string) (*models.Product, error) {
			if id != testProductID {
				return nil, models.ErrNotFound
			}
			return &models.Product{ID: id, Code: "coffee"}, nil
		},
	}, nil)

	w := httptest.NewRecorder()
	h.Get(w, WithURLParams(httptest.NewRequest(http.MethodGet, "/products/"+testProductID, nil), map[string]string{"id": testProductID}))
	AssertJSONResponse(t, w, http.StatusOK, nil)

	w = httptest.NewRecorder()
	h.Get(w, WithURLParams(httptest.NewRequest(http.MethodGet, "/products/nope", nil), map[string]string{"id": "nope"}))
	AssertErrorResponse(t, w, http.StatusNotFound, "not_found")

	w = httptest.NewRecorder()
	h.List(w, WithAuthContext(httptest.NewRequest(http.MethodGet, "/products", nil), testAccountID, "ada@example.com"))
	var resp ListProductsResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.NotNil(t, resp.Products)
	assert.Zero(t, resp.Total)
}
