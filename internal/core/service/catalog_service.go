package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotkeeper/lotkeeper/internal/core/domain"
	"github.com/lotkeeper/lotkeeper/internal/port"
)

// CatalogService is the plain CRUD collaborator for products and lots.
// Lot quantities are never mutated here; that path belongs to the
// allocation engine alone.
type CatalogService struct {
	store port.StoreRepository
}

func NewCatalogService(store port.StoreRepository) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) CreateProduct(ctx context.Context, name string) (*domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("product name must not be empty")
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &product, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *CatalogService) RenameProduct(ctx context.Context, id, name string) (*domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("product name must not be empty")
	}

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Name = name
	product.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateProduct(ctx, *product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteProduct(ctx, id)
}

// CreateLot registers a new batch for the product. Lots are born with zero
// quantity; stock arrives through addition transactions, which keeps every
// lot's quantity equal to the sum of its ledger deltas from the start.
func (s *CatalogService) CreateLot(ctx context.Context, productID, description string) (*domain.Lot, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}

	now := time.Now().UTC()
	lot := domain.Lot{
		ID:          uuid.NewString(),
		ProductID:   productID,
		Description: description,
		Quantity:    decimal.Zero,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("create lot: %w", err)
	}
	return &lot, nil
}

func (s *CatalogService) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	lot, err := s.store.GetLot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lot: %w", err)
	}
	if lot == nil {
		return nil, domain.ErrLotNotFound
	}
	return lot, nil
}

func (s *CatalogService) ListLots(ctx context.Context, productID string) ([]domain.Lot, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return s.store.ListLots(ctx, productID)
}

// UpdateLotDescription edits the only lot field mutable outside the engine.
func (s *CatalogService) UpdateLotDescription(ctx context.Context, id, description string) (*domain.Lot, error) {
	if _, err := s.GetLot(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.UpdateLotDescription(ctx, id, description); err != nil {
		return nil, fmt.Errorf("update lot: %w", err)
	}
	return s.GetLot(ctx, id)
}

func (s *CatalogService) DeleteLot(ctx context.Context, id string) error {
	if _, err := s.GetLot(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteLot(ctx, id)
}
