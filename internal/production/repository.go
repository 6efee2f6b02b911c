package production

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/platform/db"
)

// TxRepository exposes the reads and writes of one processing transaction.
type TxRepository interface {
	inventory.LedgerTx
	GetScheduleForUpdate(ctx context.Context, id int64) (ScheduleItem, error)
	Ingredients(ctx context.Context, productID int64) ([]catalog.Ingredient, error)
	Complete(ctx context.Context, id int64, actualQuantity float64, at time.Time) (ScheduleItem, error)
	SetStatus(ctx context.Context, id int64, status Status) (ScheduleItem, error)
}

// Repository persists production schedules in PostgreSQL.
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
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{LedgerTx: inventory.NewLedgerTx(tx), q: tx})
	})
}

const scheduleSelect = `SELECT s.id, s.product_id, p.name, s.quantity, s.actual_quantity, s.scheduled_date, s.status, s.notes, s.completed_at, s.created_at
FROM production_schedule s
JOIN products p ON p.id = s.product_id`

func scanSchedule(row pgx.Row) (ScheduleItem, error) {
	var s ScheduleItem
	var status string
	err := row.Scan(&s.ID, &s.ProductID, &s.ProductName, &s.Quantity, &s.ActualQuantity, &s.ScheduledDate, &status, &s.Notes, &s.CompletedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScheduleItem{}, ErrScheduleNotFound
	}
	s.Status = Status(status)
	return s, err
}

// CreateSchedule inserts a scheduled run.
func (r *Repository) CreateSchedule(ctx context.Context, in CreateInput) (ScheduleItem, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO production_schedule (product_id, quantity, scheduled_date, status, notes)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		in.ProductID, in.Quantity, in.ScheduledDate, string(StatusScheduled), in.Notes).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ScheduleItem{}, catalog.ErrProductNotFound
		}
		return ScheduleItem{}, err
	}
	return r.GetSchedule(ctx, id)
}

// GetSchedule loads one schedule entry.
func (r *Repository) GetSchedule(ctx context.Context, id int64) (ScheduleItem, error) {
	return scanSchedule(r.pool.QueryRow(ctx, scheduleSelect+` WHERE s.id = $1`, id))
}

// Ingredients returns the bill of materials of a product with live stock.
func (r *Repository) Ingredients(ctx context.Context, productID int64) ([]catalog.Ingredient, error) {
	return catalog.QueryIngredients(ctx, r.pool, productID)
}

// ListSchedules returns schedule entries ordered by date.
func (r *Repository) ListSchedules(ctx context.Context, filter ListFilter) ([]ScheduleItem, int, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("s.scheduled_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("s.scheduled_date <= $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("s.status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_schedule s`+clause, args...).Scan(&total); err != nil {
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
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`%s%s ORDER BY s.scheduled_date, s.id LIMIT $%d OFFSET $%d`, scheduleSelect, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]ScheduleItem, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

type pgTx struct {
	inventory.LedgerTx
	q db.DBTX
}

func (t *pgTx) GetScheduleForUpdate(ctx context.Context, id int64) (ScheduleItem, error) {
	return scanSchedule(t.q.QueryRow(ctx, scheduleSelect+` WHERE s.id = $1 FOR UPDATE OF s`, id))
}

func (t *pgTx) Ingredients(ctx context.Context, productID int64) ([]catalog.Ingredient, error) {
	return catalog.QueryIngredients(ctx, t.q, productID)
}

func (t *pgTx) Complete(ctx context.Context, id int64, actualQuantity float64, at time.Time) (ScheduleItem, error) {
	tag, err := t.q.Exec(ctx, `UPDATE production_schedule
SET status = $2, actual_quantity = $3, completed_at = $4, updated_at = NOW()
WHERE id = $1`, id, string(StatusCompleted), actualQuantity, at)
	if err != nil {
		return ScheduleItem{}, err
	}
	if tag.RowsAffected() == 0 {
		return ScheduleItem{}, ErrScheduleNotFound
	}
	return scanSchedule(t.q.QueryRow(ctx, scheduleSelect+` WHERE s.id = $1`, id))
}

func (t *pgTx) SetStatus(ctx context.Context, id int64, status Status) (ScheduleItem, error) {
	tag, err := t.q.Exec(ctx, `UPDATE production_schedule SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return ScheduleItem{}, err
	}
	if tag.RowsAffected() == 0 {
		return ScheduleItem{}, ErrScheduleNotFound
	}
	return scanSchedule(t.q.QueryRow(ctx, scheduleSelect+` WHERE s.id = $1`, id))
}
