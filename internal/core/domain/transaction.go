package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PolicyKind string

const (
	PolicyFIFO PolicyKind = "FIFO"
	PolicyLIFO PolicyKind = "LIFO"
)

// Transaction is an append-only ledger entry: a signed quantity adjustment
// against exactly one lot. The policy tag is recorded even when the lot was
// supplied explicitly, for audit.
type Transaction struct {
	ID        string          `db:"id" json:"id"`
	ProductID string          `db:"product_id" json:"product_id"`
	LotID     string          `db:"lot_id" json:"lot_id"`
	Delta     decimal.Decimal `db:"delta" json:"delta"`
	Policy    PolicyKind      `db:"policy" json:"policy"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
