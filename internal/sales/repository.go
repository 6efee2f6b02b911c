package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/platform/db"
)

// TxRepository exposes the writes of one sale transaction.
type TxRepository interface {
	accounts.LedgerTx
	ProductPrice(ctx context.Context, productID int64) (float64, error)
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	InsertSaleItem(ctx context.Context, it Item) (Item, error)
}

// Repository persists sales in PostgreSQL.
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
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{LedgerTx: accounts.NewLedgerTx(tx), q: tx})
	})
}

const saleColumns = `id, number, customer_id, payment_method, total_amount, COALESCE(created_by, 0), created_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var method string
	err := row.Scan(&s.ID, &s.Number, &s.CustomerID, &method, &s.TotalAmount, &s.CreatedBy, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	s.PaymentMethod = PaymentMethod(method)
	return s, err
}

// GetSale loads a sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, quantity, unit_price, total FROM sale_items WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	s.Items = make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return Sale{}, err
		}
		s.Items = append(s.Items, it)
	}
	return s, rows.Err()
}

// ListSales returns a page of sales, newest first.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+clause, args...).Scan(&total); err != nil {
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
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM sales%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, saleColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Sale, 0)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

type pgTx struct {
	accounts.LedgerTx
	q db.DBTX
}

func (t *pgTx) ProductPrice(ctx context.Context, productID int64) (float64, error) {
	var price float64
	err := t.q.QueryRow(ctx, `SELECT price FROM products WHERE id = $1`, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, catalog.ErrProductNotFound
	}
	return price, err
}

func (t *pgTx) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	var createdBy *int64
	if s.CreatedBy != 0 {
		createdBy = &s.CreatedBy
	}
	err := t.q.QueryRow(ctx, `INSERT INTO sales (number, customer_id, payment_method, total_amount, created_by)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		s.Number, s.CustomerID, string(s.PaymentMethod), s.TotalAmount, createdBy).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Sale{}, accounts.ErrPartyNotFound
		}
		return Sale{}, err
	}
	return s, nil
}

func (t *pgTx) InsertSaleItem(ctx context.Context, it Item) (Item, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, total)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		it.SaleID, it.ProductID, it.Quantity, it.UnitPrice, it.Total).Scan(&it.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Item{}, catalog.ErrProductNotFound
		}
		return Item{}, err
	}
	return it, nil
}
