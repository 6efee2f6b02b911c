package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/platform/db"
)

// TxRepository exposes the writes of one purchase transaction. It carries
// the inventory and party ledgers so stock, cost and balances move atomically.
type TxRepository interface {
	inventory.LedgerTx
	accounts.LedgerTx
	InsertPurchase(ctx context.Context, p Purchase) (Purchase, error)
	InsertPurchaseItem(ctx context.Context, item Item) (Item, error)
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error)
	SetStatus(ctx context.Context, id int64, status Status, stockSynced bool) error
}

// Repository persists purchases in PostgreSQL.
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
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{
			stockLedger: inventory.NewLedgerTx(tx),
			partyLedger: accounts.NewLedgerTx(tx),
			q:           tx,
		})
	})
}

const purchaseColumns = `id, number, supplier_name, party_id, payment_method, status, total_amount, stock_synced, notes, COALESCE(created_by, 0), created_at`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	var status string
	err := row.Scan(&p.ID, &p.Number, &p.SupplierName, &p.PartyID, &p.PaymentMethod, &status, &p.TotalAmount, &p.StockSynced, &p.Notes, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ErrPurchaseNotFound
	}
	p.Status = Status(status)
	return p, err
}

// GetPurchase loads a purchase with its lines.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	if err != nil {
		return Purchase{}, err
	}
	p.Items, err = queryItems(ctx, r.pool, id)
	return p, err
}

// ListPurchases returns a page of purchases, newest first, without lines.
func (r *Repository) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PartyID != 0 {
		args = append(args, filter.PartyID)
		where = append(where, fmt.Sprintf("party_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM purchases%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, purchaseColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Purchase, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func queryItems(ctx context.Context, q db.DBTX, purchaseID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, inventory_item_id, quantity, unit_price, total
FROM purchase_items WHERE purchase_id = $1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PurchaseID, &it.InventoryItemID, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type (
	stockLedger = inventory.LedgerTx
	partyLedger = accounts.LedgerTx
)

type pgTx struct {
	stockLedger
	partyLedger
	q db.DBTX
}

func (t *pgTx) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	var createdBy *int64
	if p.CreatedBy != 0 {
		createdBy = &p.CreatedBy
	}
	err := t.q.QueryRow(ctx, `INSERT INTO purchases (number, supplier_name, party_id, payment_method, status, total_amount, stock_synced, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`,
		p.Number, p.SupplierName, p.PartyID, p.PaymentMethod, string(p.Status), p.TotalAmount, p.StockSynced, p.Notes, createdBy).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Purchase{}, accounts.ErrPartyNotFound
		}
		return Purchase{}, err
	}
	return p, nil
}

func (t *pgTx) InsertPurchaseItem(ctx context.Context, it Item) (Item, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO purchase_items (purchase_id, inventory_item_id, quantity, unit_price, total)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		it.PurchaseID, it.InventoryItemID, it.Quantity, it.UnitPrice, it.Total).Scan(&it.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Item{}, inventory.ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func (t *pgTx) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	p, err := scanPurchase(t.q.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Purchase{}, err
	}
	p.Items, err = queryItems(ctx, t.q, id)
	return p, err
}

func (t *pgTx) SetStatus(ctx context.Context, id int64, status Status, stockSynced bool) error {
	tag, err := t.q.Exec(ctx, `UPDATE purchases SET status = $2, stock_synced = $3, updated_at = NOW() WHERE id = $1`, id, string(status), stockSynced)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}
