package models

import (
	"time"

	"github.com/BradenHooton/autopay/pkg/money"
)

// Product is a priced item owned by an account. Buying it transfers its
// price to the owner.
type Product struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Code      string       `json:"code"` // unique per owner; saving an existing code re-prices it
	Name      string       `json:"name"`
	Price     money.Amount `json:"price"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
