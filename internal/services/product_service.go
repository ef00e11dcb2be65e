package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/autopay/internal/admission"
	"github.com/BradenHooton/autopay/internal/models"
	pkglogger "github.com/BradenHooton/autopay/pkg/logger"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/google/uuid"
)

// ProductRepository defines product persistence
type ProductRepository interface {
	Upsert(ctx context.Context, p *models.Product) (*models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Product, error)
}

// ProductService manages priced products and their purchase
type ProductService struct {
	products   ProductRepository
	accounts   AccountRepository
	verifier   *CredentialVerifier
	ledger     Transferer
	dispatcher *admission.Dispatcher
	logger     *slog.Logger
	audit      *pkglogger.AuditLogger
}

func NewProductService(
	products ProductRepository,
	accounts AccountRepository,
	verifier *CredentialVerifier,
	ledger Transferer,
	dispatcher *admission.Dispatcher,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *ProductService {
	return &ProductService{
		products:   products,
		accounts:   accounts,
		verifier:   verifier,
		ledger:     ledger,
		dispatcher: dispatcher,
		logger:     logger,
		audit:      audit,
	}
}

// SaveProduct creates the owner's product or re-prices the one sharing code
func (s *ProductService) SaveProduct(ctx context.Context, ownerID, code, name string, price money.Amount) (*models.Product, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" {
		return nil, fmt.Errorf("%w: product code is required", models.ErrBadRequest)
	}
	if name == "" {
		name = code
	}
	if !price.IsPositive() {
		return nil, models.ErrInvalidAmount
	}

	return admission.Do(ctx, s.dispatcher, admission.ClassProductUpsert, func(ctx context.Context) (*models.Product, error) {
		product, err := s.products.Upsert(ctx, &models.Product{
			OwnerID: ownerID,
			Code:    code,
			Name:    name,
			Price:   price,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to save product: %w", err)
		}
		s.logger.Info("product saved",
			slog.String("product_id", product.ID),
			slog.String("owner_id", ownerID),
			slog.String("price", price.String()))
		return product, nil
	})
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return s.products.GetByID(ctx, id)
}

func (s *ProductService) ListProducts(ctx context.Context, ownerID string) ([]*models.Product, error) {
	return s.products.ListByOwner(ctx, ownerID)
}

// PayForProduct proves the buyer's password and PIN, then transfers the
// product price to its owner.
func (s *ProductService) PayForProduct(ctx context.Context, buyerID, productID, password, pin string) (*TransferResult, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return nil, models.ErrNotFound
	}

	result, err := admission.Do(ctx, s.dispatcher, admission.ClassProductPurchase, func(ctx context.Context) (*TransferResult, error) {
		product, err := s.products.GetByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		if product.OwnerID == buyerID {
			return nil, models.ErrSameAccount
		}
		if _, err := s.accounts.GetByID(ctx, product.OwnerID); err != nil {
			return nil, err
		}

		err = s.verifier.WithAccount(ctx, buyerID, func(buyer *models.Account) error {
			if err := s.verifier.Verify(ctx, buyer, CredentialPassword, password); err != nil {
				return err
			}
			return s.verifier.Verify(ctx, buyer, CredentialPIN, pin)
		})
		if err != nil {
			return nil, err
		}

		return s.ledger.Transfer(ctx, buyerID, product.OwnerID, product.Price)
	})

	metadata := map[string]string{"product_id": productID, "success": fmt.Sprint(err == nil)}
	if err != nil {
		metadata["failure_reason"] = err.Error()
	}
	s.audit.LogAccountAction("product_purchase", buyerID, metadata)

	return result, err
}
