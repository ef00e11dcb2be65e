package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/autopay/internal/database"
	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, owner_id, code, name, price, created_at, updated_at`

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{pool: db.Pool}
}

func scanProductRow(scanner rowScanner) (*models.Product, error) {
	var (
		p     models.Product
		price int64
	)
	if err := scanner.Scan(&p.ID, &p.OwnerID, &p.Code, &p.Name, &price, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	p.Price = money.FromMinor(price)
	return &p, nil
}

// Upsert creates the product or, when the owner already has one with the
// same code, updates its name and price.
func (r *ProductRepository) Upsert(ctx context.Context, p *models.Product) (*models.Product, error) {
	now := time.Now()
	query := `
		INSERT INTO products (id, owner_id, code, name, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (owner_id, code)
		DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = EXCLUDED.updated_at
		RETURNING ` + productColumns

	return scanProductRow(r.pool.QueryRow(ctx, query,
		uuid.New().String(), p.OwnerID, p.Code, p.Name, p.Price.Minor(), now,
	))
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanProductRow(r.pool.QueryRow(ctx, query, id))
}

func (r *ProductRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return products, nil
}
