package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotkeeper/lotkeeper/internal/adapter/storage"
	"github.com/lotkeeper/lotkeeper/internal/core/domain"
)

type mockCacheRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{seen: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func setupAllocation(t *testing.T) (*AllocationService, *storage.MemoryAdapter, domain.Product) {
	t.Helper()
	store := storage.NewMemoryAdapter()
	svc := NewAllocationService(store, newMockCacheRepo())

	product := domain.Product{ID: uuid.NewString(), Name: "widget", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateProduct(context.Background(), product))
	return svc, store, product
}

func seedLot(t *testing.T, store *storage.MemoryAdapter, productID, id string, created time.Time, quantity int64) domain.Lot {
	t.Helper()
	lot := domain.Lot{
		ID:        id,
		ProductID: productID,
		Quantity:  decimal.NewFromInt(quantity),
		Version:   1,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, store.CreateLot(context.Background(), lot))
	return lot
}

func TestCreateTransaction_PolicyResolvesFIFO(t *testing.T) {
	svc, store, product := setupAllocation(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, store, product.ID, "lot-old", t1, 5)
	seedLot(t, store, product.ID, "lot-new", t1.Add(time.Hour), 5)

	txn, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		Delta:     decimal.NewFromInt(-2),
		Policy:    domain.PolicyFIFO,
	})
	require.NoError(t, err)
	assert.Equal(t, "lot-old", txn.LotID)
	assert.Equal(t, domain.PolicyFIFO, txn.Policy)

	lot, err := store.GetLot(context.Background(), "lot-old")
	require.NoError(t, err)
	assert.True(t, lot.Quantity.Equal(decimal.NewFromInt(3)), "got %s", lot.Quantity)
}

func TestCreateTransaction_PolicyResolvesLIFO(t *testing.T) {
	svc, store, product := setupAllocation(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, store, product.ID, "lot-old", t1, 5)
	seedLot(t, store, product.ID, "lot-new", t1.Add(time.Hour), 5)

	txn, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		Delta:     decimal.NewFromInt(-1),
		Policy:    domain.PolicyLIFO,
	})
	require.NoError(t, err)
	assert.Equal(t, "lot-new", txn.LotID)
}

func TestCreateTransaction_ExplicitLotSkipsPolicy(t *testing.T) {
	svc, store, product := setupAllocation(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, store, product.ID, "lot-old", t1, 5)
	seedLot(t, store, product.ID, "lot-new", t1.Add(time.Hour), 5)

	// FIFO would pick lot-old; the explicit ID wins and the tag is still recorded.
	txn, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		LotID:     "lot-new",
		Delta:     decimal.NewFromInt(-1),
		Policy:    domain.PolicyFIFO,
	})
	require.NoError(t, err)
	assert.Equal(t, "lot-new", txn.LotID)
	assert.Equal(t, domain.PolicyFIFO, txn.Policy)
}

func TestCreateTransaction_ExplicitLotWrongProduct(t *testing.T) {
	svc, store, product := setupAllocation(t)

	other := domain.Product{ID: uuid.NewString(), Name: "other"}
	require.NoError(t, store.CreateProduct(context.Background(), other))
	seedLot(t, store, other.ID, "foreign-lot", time.Now().UTC(), 10)

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		LotID:     "foreign-lot",
		Delta:     decimal.NewFromInt(-1),
		Policy:    domain.PolicyFIFO,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestCreateTransaction_ProductNotFound(t *testing.T) {
	svc, _, _ := setupAllocation(t)

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: "missing",
		Delta:     decimal.NewFromInt(1),
		Policy:    domain.PolicyFIFO,
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCreateTransaction_LotNotFound(t *testing.T) {
	svc, _, product := setupAllocation(t)

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		LotID:     "missing",
		Delta:     decimal.NewFromInt(1),
		Policy:    domain.PolicyFIFO,
	})
	assert.ErrorIs(t, err, domain.ErrLotNotFound)
}

func TestCreateTransaction_NoLotAvailable(t *testing.T) {
	svc, _, product := setupAllocation(t)

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		Delta:     decimal.NewFromInt(1),
		Policy:    domain.PolicyLIFO,
	})
	assert.ErrorIs(t, err, domain.ErrNoLotAvailable)
}

func TestCreateTransaction_UnknownPolicy(t *testing.T) {
	svc, _, product := setupAllocation(t)

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		Delta:     decimal.NewFromInt(1),
		Policy:    domain.PolicyKind("RANDOM"),
	})
	assert.ErrorIs(t, err, domain.ErrUnknownPolicy)
}

func TestCreateTransaction_InsufficientQuantity(t *testing.T) {
	svc, store, product := setupAllocation(t)
	seedLot(t, store, product.ID, "lot-1", time.Now().UTC(), 3)

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		LotID:     "lot-1",
		Delta:     decimal.NewFromInt(-5),
		Policy:    domain.PolicyFIFO,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientQuantity)

	// Rejected attempt leaves no trace: no ledger entry, no quantity change.
	txns, err := svc.ListTransactions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, txns)

	lot, err := store.GetLot(context.Background(), "lot-1")
	require.NoError(t, err)
	assert.True(t, lot.Quantity.Equal(decimal.NewFromInt(3)))
}

func TestCreateTransaction_DuplicateRequest(t *testing.T) {
	svc, store, product := setupAllocation(t)
	seedLot(t, store, product.ID, "lot-1", time.Now().UTC(), 10)

	req := CreateTransactionRequest{
		RequestID: "req-1",
		ProductID: product.ID,
		LotID:     "lot-1",
		Delta:     decimal.NewFromInt(-1),
		Policy:    domain.PolicyFIFO,
	}

	_, err := svc.CreateTransaction(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.CreateTransaction(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	lot, err := store.GetLot(context.Background(), "lot-1")
	require.NoError(t, err)
	assert.True(t, lot.Quantity.Equal(decimal.NewFromInt(9)))
}

func TestCreateTransaction_AccountingIdentity(t *testing.T) {
	svc, store, product := setupAllocation(t)
	seedLot(t, store, product.ID, "lot-1", time.Now().UTC(), 0)

	deltas := []int64{10, -3, 2}
	for _, d := range deltas {
		_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
			ProductID: product.ID,
			Delta:     decimal.NewFromInt(d),
			Policy:    domain.PolicyFIFO,
		})
		require.NoError(t, err)
	}

	// A rejected overdraw must contribute zero to the identity.
	_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
		ProductID: product.ID,
		Delta:     decimal.NewFromInt(-100),
		Policy:    domain.PolicyFIFO,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientQuantity)

	levels, err := svc.ListQuantities(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.True(t, levels[0].Quantity.Equal(decimal.NewFromInt(9)), "got %s", levels[0].Quantity)

	balance, err := svc.LotBalance(context.Background(), "lot-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(9)))
}

func TestCreateTransaction_ConcurrentOverdraw(t *testing.T) {
	svc, store, product := setupAllocation(t)
	seedLot(t, store, product.ID, "lot-1", time.Now().UTC(), 1)

	// Two concurrent withdrawals, each valid alone, jointly overdraw the lot.
	var success, failure atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
				ProductID: product.ID,
				LotID:     "lot-1",
				Delta:     decimal.NewFromInt(-1),
				Policy:    domain.PolicyFIFO,
			})
			if err == nil {
				success.Add(1)
			} else {
				failure.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), success.Load(), "exactly one withdrawal must win")
	assert.Equal(t, int32(1), failure.Load())

	lot, err := store.GetLot(context.Background(), "lot-1")
	require.NoError(t, err)
	assert.True(t, lot.Quantity.IsZero(), "got %s", lot.Quantity)

	txns, err := svc.ListTransactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestCreateTransaction_ConcurrentAcrossLots(t *testing.T) {
	svc, store, product := setupAllocation(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, store, product.ID, "lot-a", t1, 10)
	seedLot(t, store, product.ID, "lot-b", t1.Add(time.Hour), 10)

	var wg sync.WaitGroup
	for _, lotID := range []string{"lot-a", "lot-b"} {
		wg.Add(1)
		go func(lotID string) {
			defer wg.Done()
			_, err := svc.CreateTransaction(context.Background(), CreateTransactionRequest{
				ProductID: product.ID,
				LotID:     lotID,
				Delta:     decimal.NewFromInt(-4),
				Policy:    domain.PolicyFIFO,
			})
			assert.NoError(t, err)
		}(lotID)
	}
	wg.Wait()

	for _, lotID := range []string{"lot-a", "lot-b"} {
		lot, err := store.GetLot(context.Background(), lotID)
		require.NoError(t, err)
		assert.True(t, lot.Quantity.Equal(decimal.NewFromInt(6)))
	}
}
