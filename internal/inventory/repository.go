package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovenly/ovenly/internal/platform/db"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LedgerTx
	InsertItem(ctx context.Context, in ItemInput) (Item, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

const itemColumns = `id, name, current_stock, min_level, unit, cost_per_unit, supplier, category_id, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.CurrentStock, &it.MinLevel, &it.Unit, &it.CostPerUnit, &it.Supplier, &it.CategoryID, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return it, err
}

// ListItems returns a page of items ordered by name plus the total count.
func (r *Repository) ListItems(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.PerPage
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM inventory_items%s ORDER BY name, id LIMIT $%d OFFSET $%d`, itemColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// GetItem loads one item.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id))
}

// UpdateItem rewrites the descriptive attributes of an item.
func (r *Repository) UpdateItem(ctx context.Context, id int64, in ItemInput) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `UPDATE inventory_items
SET name = $2, min_level = $3, unit = $4, supplier = $5, category_id = $6, updated_at = NOW()
WHERE id = $1
RETURNING `+itemColumns, id, in.Name, in.MinLevel, in.Unit, in.Supplier, in.CategoryID))
}

// DeleteItem removes an item that nothing references.
func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrItemInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// LowStockItems lists items with current_stock <= min_level. The SQL narrows
// the candidates; FilterLowStock computes shortages and the order.
func (r *Repository) LowStockItems(ctx context.Context) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE current_stock <= min_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return FilterLowStock(items), nil
}

// History lists ledger rows for an item, newest first.
func (r *Repository) History(ctx context.Context, itemID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, inventory_item_id, type, quantity, unit_cost, reason, reference, COALESCE(created_by, 0), created_at
FROM inventory_transactions
WHERE inventory_item_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Transaction, 0)
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.ItemID, &typ, &t.Quantity, &t.UnitCost, &t.Reason, &t.Reference, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TransactionType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

// StockDrift compares stored stock with the signed ledger sum for every item.
func (r *Repository) StockDrift(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.name, i.current_stock, COALESCE(l.total, 0)
FROM inventory_items i
LEFT JOIN (
    SELECT inventory_item_id,
           SUM(CASE WHEN type = 'out' THEN -quantity ELSE quantity END) AS total
    FROM inventory_transactions
    GROUP BY inventory_item_id
) l ON l.inventory_item_id = i.id
WHERE i.current_stock <> COALESCE(l.total, 0)
ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Drift, 0)
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.ItemID, &d.Name, &d.StoredStock, &d.LedgerStock); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// NewLedgerTx adapts a pgx transaction (or pool) into a LedgerTx.
func NewLedgerTx(q db.DBTX) LedgerTx {
	return &pgTx{q: q}
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) InsertItem(ctx context.Context, in ItemInput) (Item, error) {
	return scanItem(t.q.QueryRow(ctx, `INSERT INTO inventory_items (name, current_stock, min_level, unit, cost_per_unit, supplier, category_id)
VALUES ($1, 0, $2, $3, $4, $5, $6)
RETURNING `+itemColumns, in.Name, in.MinLevel, in.Unit, in.CostPerUnit, in.Supplier, in.CategoryID))
}

func (t *pgTx) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(t.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, itemID))
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	var createdBy *int64
	if tx.CreatedBy != 0 {
		createdBy = &tx.CreatedBy
	}
	err := t.q.QueryRow(ctx, `INSERT INTO inventory_transactions (inventory_item_id, type, quantity, unit_cost, reason, reference, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`, tx.ItemID, string(tx.Type), tx.Quantity, tx.UnitCost, tx.Reason, tx.Reference, createdBy, tx.CreatedAt).Scan(&tx.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Transaction{}, ErrItemNotFound
		}
		return Transaction{}, err
	}
	return tx, nil
}

func (t *pgTx) ApplyStockDelta(ctx context.Context, itemID int64, delta float64) (float64, error) {
	var stock float64
	err := t.q.QueryRow(ctx, `UPDATE inventory_items SET current_stock = current_stock + $2, updated_at = NOW() WHERE id = $1 RETURNING current_stock`, itemID, delta).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrItemNotFound
	}
	return stock, err
}

func (t *pgTx) SetCostPerUnit(ctx context.Context, itemID int64, cost float64) error {
	tag, err := t.q.Exec(ctx, `UPDATE inventory_items SET cost_per_unit = $2, updated_at = NOW() WHERE id = $1`, itemID, cost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (t *pgTx) SumLedger(ctx context.Context, itemID int64) (float64, error) {
	var total float64
	err := t.q.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN type = 'out' THEN -quantity ELSE quantity END), 0)
FROM inventory_transactions WHERE inventory_item_id = $1`, itemID).Scan(&total)
	return total, err
}
