package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/lotkeeper/lotkeeper/internal/core/domain"
	"github.com/lotkeeper/lotkeeper/internal/port"
)

type MySQLAdapter struct {
	db *sqlx.DB
}

var _ port.StoreRepository = (*MySQLAdapter)(nil)

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO products (id, name, created_at, updated_at)
		VALUES (:id, :name, :created_at, :updated_at)`, product)
	return errors.Wrap(err, "insert product")
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := m.db.GetContext(ctx, &product, `
		SELECT id, name, created_at, updated_at FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query product")
	}
	return &product, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := []domain.Product{}
	err := m.db.SelectContext(ctx, &products, `
		SELECT id, name, created_at, updated_at FROM products ORDER BY created_at, id`)
	return products, errors.Wrap(err, "list products")
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products SET name = ?, updated_at = ? WHERE id = ?`,
		product.Name, product.UpdatedAt, product.ID)
	if err != nil {
		return errors.Wrap(err, "update product")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	var lots int
	if err := m.db.GetContext(ctx, &lots, `
		SELECT COUNT(*) FROM lots WHERE product_id = ?`, id); err != nil {
		return errors.Wrap(err, "count lots")
	}
	if lots > 0 {
		return domain.ErrConflict
	}

	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (m *MySQLAdapter) CreateLot(ctx context.Context, lot domain.Lot) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO lots (id, product_id, description, quantity, version, created_at, updated_at)
		VALUES (:id, :product_id, :description, :quantity, :version, :created_at, :updated_at)`, lot)
	return errors.Wrap(err, "insert lot")
}

func (m *MySQLAdapter) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	var lot domain.Lot
	err := m.db.GetContext(ctx, &lot, `
		SELECT id, product_id, description, quantity, version, created_at, updated_at
		FROM lots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query lot")
	}
	return &lot, nil
}

func (m *MySQLAdapter) ListLots(ctx context.Context, productID string) ([]domain.Lot, error) {
	lots := []domain.Lot{}
	err := m.db.SelectContext(ctx, &lots, `
		SELECT id, product_id, description, quantity, version, created_at, updated_at
		FROM lots WHERE product_id = ?`, productID)
	return lots, errors.Wrap(err, "list lots")
}

func (m *MySQLAdapter) UpdateLotDescription(ctx context.Context, id, description string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE lots SET description = ?, updated_at = NOW() WHERE id = ?`,
		description, id)
	if err != nil {
		return errors.Wrap(err, "update lot")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrLotNotFound
	}
	return nil
}

func (m *MySQLAdapter) DeleteLot(ctx context.Context, id string) error {
	var txns int
	if err := m.db.GetContext(ctx, &txns, `
		SELECT COUNT(*) FROM lot_transactions WHERE lot_id = ?`, id); err != nil {
		return errors.Wrap(err, "count transactions")
	}
	if txns > 0 {
		return domain.ErrConflict
	}

	result, err := m.db.ExecContext(ctx, `DELETE FROM lots WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete lot")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrLotNotFound
	}
	return nil
}

// CommitAllocation appends the ledger row and applies the delta to the lot's
// quantity inside one DB transaction. The UPDATE carries the version check
// and the non-negativity guard, so a concurrent writer or an overdraw race
// leaves zero rows affected and the whole unit rolls back.
func (m *MySQLAdapter) CommitAllocation(ctx context.Context, txn domain.Transaction, expectedVersion int) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE lots
		SET quantity = quantity + ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ? AND quantity + ? >= 0`,
		txn.Delta, txn.LotID, expectedVersion, txn.Delta,
	)
	if err != nil {
		return errors.Wrap(err, "update lot quantity")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConflict
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO lot_transactions (id, product_id, lot_id, delta, policy, created_at)
		VALUES (:id, :product_id, :lot_id, :delta, :policy, :created_at)`, txn)
	if err != nil {
		return errors.Wrap(err, "insert transaction")
	}

	return errors.Wrap(tx.Commit(), "commit allocation")
}

func (m *MySQLAdapter) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	transactions := []domain.Transaction{}
	err := m.db.SelectContext(ctx, &transactions, `
		SELECT id, product_id, lot_id, delta, policy, created_at
		FROM lot_transactions ORDER BY created_at, id`)
	return transactions, errors.Wrap(err, "list transactions")
}

func (m *MySQLAdapter) SumTransactionDeltas(ctx context.Context, lotID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := m.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(delta), 0) FROM lot_transactions WHERE lot_id = ?`, lotID)
	return sum, errors.Wrap(err, "sum transaction deltas")
}

func (m *MySQLAdapter) ListQuantities(ctx context.Context) ([]domain.QuantityLevel, error) {
	levels := []domain.QuantityLevel{}
	err := m.db.SelectContext(ctx, &levels, `
		SELECT product_id, id AS lot_id, quantity
		FROM lots ORDER BY product_id, created_at, id`)
	return levels, errors.Wrap(err, "list quantities")
}
