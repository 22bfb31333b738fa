package storage

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lotkeeper/lotkeeper/internal/core/domain"
	"github.com/lotkeeper/lotkeeper/internal/port"
)

// MemoryAdapter is a mutex-guarded in-memory store. It backs unit tests and
// local development; the mutex gives CommitAllocation the same isolation the
// MySQL adapter gets from its DB transaction.
type MemoryAdapter struct {
	mu           sync.Mutex
	products     map[string]domain.Product
	lots         map[string]domain.Lot
	transactions []domain.Transaction
}

var _ port.StoreRepository = (*MemoryAdapter)(nil)

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products: make(map[string]domain.Product),
		lots:     make(map[string]domain.Lot),
	}
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	clone := product
	return &clone, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	return products, nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	m.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	for _, lot := range m.lots {
		if lot.ProductID == id {
			return domain.ErrConflict
		}
	}
	delete(m.products, id)
	return nil
}

func (m *MemoryAdapter) CreateLot(ctx context.Context, lot domain.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[lot.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	m.lots[lot.ID] = lot
	return nil
}

func (m *MemoryAdapter) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return nil, nil
	}
	clone := lot
	return &clone, nil
}

func (m *MemoryAdapter) ListLots(ctx context.Context, productID string) ([]domain.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lots []domain.Lot
	for _, lot := range m.lots {
		if lot.ProductID == productID {
			lots = append(lots, lot)
		}
	}
	return lots, nil
}

func (m *MemoryAdapter) UpdateLotDescription(ctx context.Context, id, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return domain.ErrLotNotFound
	}
	lot.Description = description
	lot.UpdatedAt = time.Now().UTC()
	m.lots[id] = lot
	return nil
}

func (m *MemoryAdapter) DeleteLot(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lots[id]; !ok {
		return domain.ErrLotNotFound
	}
	for _, txn := range m.transactions {
		if txn.LotID == id {
			return domain.ErrConflict
		}
	}
	delete(m.lots, id)
	return nil
}

func (m *MemoryAdapter) CommitAllocation(ctx context.Context, txn domain.Transaction, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lot, ok := m.lots[txn.LotID]
	if !ok {
		return domain.ErrLotNotFound
	}
	if lot.Version != expectedVersion {
		return domain.ErrConflict
	}

	newQuantity := lot.Quantity.Add(txn.Delta)
	if newQuantity.IsNegative() {
		return domain.ErrConflict
	}

	lot.Quantity = newQuantity
	lot.Version++
	lot.UpdatedAt = time.Now().UTC()
	m.lots[txn.LotID] = lot
	m.transactions = append(m.transactions, txn)
	return nil
}

func (m *MemoryAdapter) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transactions := make([]domain.Transaction, len(m.transactions))
	copy(transactions, m.transactions)
	return transactions, nil
}

func (m *MemoryAdapter) SumTransactionDeltas(ctx context.Context, lotID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, txn := range m.transactions {
		if txn.LotID == lotID {
			sum = sum.Add(txn.Delta)
		}
	}
	return sum, nil
}

func (m *MemoryAdapter) ListQuantities(ctx context.Context) ([]domain.QuantityLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	levels := make([]domain.QuantityLevel, 0, len(m.lots))
	for _, lot := range m.lots {
		levels = append(levels, domain.QuantityLevel{
			ProductID: lot.ProductID,
			LotID:     lot.ID,
			Quantity:  lot.Quantity,
		})
	}
	return levels, nil
}
