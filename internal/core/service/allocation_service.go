package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotkeeper/lotkeeper/internal/core/domain"
	"github.com/lotkeeper/lotkeeper/internal/core/policy"
	"github.com/lotkeeper/lotkeeper/internal/port"
)

// AllocationService is the allocation engine: it resolves the target lot
// (explicit or by policy), validates the resulting quantity, and commits the
// ledger entry together with the lot mutation as one atomic unit.
type AllocationService struct {
	store port.StoreRepository
	cache port.CacheRepository
}

// NewAllocationService wires the engine. cache may be nil; idempotency
// checks are then skipped.
func NewAllocationService(store port.StoreRepository, cache port.CacheRepository) *AllocationService {
	return &AllocationService{store: store, cache: cache}
}

type CreateTransactionRequest struct {
	// RequestID, when set, deduplicates retries of the same client request.
	RequestID string
	ProductID string
	// LotID, when set, targets that lot verbatim; policy resolution is skipped.
	LotID  string
	Delta  decimal.Decimal
	Policy domain.PolicyKind
}

func (s *AllocationService) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error) {
	if !policy.Known(req.Policy) {
		return nil, domain.ErrUnknownPolicy
	}

	if s.cache != nil && req.RequestID != "" {
		ok, err := s.cache.SetIdempotency(ctx, "txn:"+req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	product, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}

	lot, err := s.resolveLot(ctx, req)
	if err != nil {
		return nil, err
	}

	if lot.Quantity.Add(req.Delta).IsNegative() {
		return nil, domain.ErrInsufficientQuantity
	}

	now := time.Now().UTC()
	txn := domain.Transaction{
		ID:        uuid.NewString(),
		ProductID: req.ProductID,
		LotID:     lot.ID,
		Delta:     req.Delta,
		Policy:    req.Policy,
		CreatedAt: now,
	}

	if err := s.store.CommitAllocation(ctx, txn, lot.Version); err != nil {
		return nil, err
	}

	return &txn, nil
}

func (s *AllocationService) resolveLot(ctx context.Context, req CreateTransactionRequest) (*domain.Lot, error) {
	if req.LotID != "" {
		lot, err := s.store.GetLot(ctx, req.LotID)
		if err != nil {
			return nil, fmt.Errorf("get lot: %w", err)
		}
		if lot == nil {
			return nil, domain.ErrLotNotFound
		}
		if lot.ProductID != req.ProductID {
			return nil, domain.ErrInvalidReference
		}
		return lot, nil
	}

	lots, err := s.store.ListLots(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	return policy.SelectLot(lots, req.Policy)
}

// ListTransactions returns the ledger in commit order.
func (s *AllocationService) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.store.ListTransactions(ctx)
}

// ListQuantities returns the current quantity per (product, lot) pair. The
// values come straight from lot state, so they can never drift from the
// ledger's committed deltas.
func (s *AllocationService) ListQuantities(ctx context.Context) ([]domain.QuantityLevel, error) {
	return s.store.ListQuantities(ctx)
}

// LotBalance recomputes a lot's quantity from its ledger entries. Used for
// audit; a healthy store always matches the lot's stored quantity.
func (s *AllocationService) LotBalance(ctx context.Context, lotID string) (decimal.Decimal, error) {
	lot, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get lot: %w", err)
	}
	if lot == nil {
		return decimal.Zero, domain.ErrLotNotFound
	}
	return s.store.SumTransactionDeltas(ctx, lotID)
}
