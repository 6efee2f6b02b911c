package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs read-only aggregate queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SalesTotal sums sales created in [from, to).
func (r *Repository) SalesTotal(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0) FROM sales WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&total)
	return total, err
}

// CountActiveProducts counts sellable products.
func (r *Repository) CountActiveProducts(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE is_active`).Scan(&n)
	return n, err
}

// CountLowStock counts items at or below their minimum level.
func (r *Repository) CountLowStock(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items WHERE current_stock <= min_level`).Scan(&n)
	return n, err
}

// CountPendingProductions counts runs not yet completed.
func (r *Repository) CountPendingProductions(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_schedule WHERE status <> 'completed'`).Scan(&n)
	return n, err
}

// InventoryValue values stock at weighted-average cost.
func (r *Repository) InventoryValue(ctx context.Context) (float64, error) {
	var v float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(current_stock * cost_per_unit), 0) FROM inventory_items WHERE current_stock > 0`).Scan(&v)
	return v, err
}

// OutstandingBalance sums positive balances of one party kind.
func (r *Repository) OutstandingBalance(ctx context.Context, kind string) (float64, error) {
	var v float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM parties WHERE kind = $1 AND balance > 0`, kind).Scan(&v)
	return v, err
}

// DailySales groups sales in [from, to) by UTC day.
func (r *Repository) DailySales(ctx context.Context, from, to time.Time) ([]DailyTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT (created_at AT TIME ZONE 'UTC')::date AS day, COALESCE(SUM(total_amount), 0), COUNT(*)
FROM sales
WHERE created_at >= $1 AND created_at < $2
GROUP BY day
ORDER BY day`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]DailyTotal, 0)
	for rows.Next() {
		var d DailyTotal
		if err := rows.Scan(&d.Day, &d.Total, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
