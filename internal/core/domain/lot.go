package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a discrete, dated batch of a product's stock. Quantity is the
// authoritative stock level and is only mutated through committed
// transactions; Version backs optimistic locking on that mutation.
type Lot struct {
	ID          string          `db:"id" json:"id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Version     int             `db:"version" json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// QuantityLevel is the derived read model: one entry per lot, always equal
// to the lot's stored quantity. It has no write path of its own.
type QuantityLevel struct {
	ProductID string          `db:"product_id" json:"product_id"`
	LotID     string          `db:"lot_id" json:"lot_id"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
}
