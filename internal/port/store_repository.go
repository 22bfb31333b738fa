package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lotkeeper/lotkeeper/internal/core/domain"
)

// StoreRepository is the durable entity store the core works against.
// Lookups return (nil, nil) when the record does not exist.
type StoreRepository interface {
	CreateProduct(ctx context.Context, product domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error

	CreateLot(ctx context.Context, lot domain.Lot) error
	GetLot(ctx context.Context, id string) (*domain.Lot, error)
	// ListLots returns the product's lots in no guaranteed order; callers
	// sort by CreatedAt for policy resolution.
	ListLots(ctx context.Context, productID string) ([]domain.Lot, error)
	UpdateLotDescription(ctx context.Context, id, description string) error
	DeleteLot(ctx context.Context, id string) error

	// CommitAllocation persists txn and applies txn.Delta to the lot's
	// quantity as a single atomic unit. expectedVersion guards the lot's
	// read-modify-write: a version mismatch or a delta that would drive
	// the quantity negative aborts the whole unit with domain.ErrConflict.
	CommitAllocation(ctx context.Context, txn domain.Transaction, expectedVersion int) error
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	SumTransactionDeltas(ctx context.Context, lotID string) (decimal.Decimal, error)

	ListQuantities(ctx context.Context) ([]domain.QuantityLevel, error)
}
