package accounts

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
	InsertExpense(ctx context.Context, e Expense) error
}

// Repository persists parties and their ledgers in PostgreSQL.
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
		return errors.New("accounts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

const partyColumns = `id, kind, name, phone, email, address, balance, total_spent, created_at, updated_at`

func scanParty(row pgx.Row) (Party, error) {
	var p Party
	var kind string
	err := row.Scan(&p.ID, &kind, &p.Name, &p.Phone, &p.Email, &p.Address, &p.Balance, &p.TotalSpent, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, ErrPartyNotFound
	}
	p.Kind = PartyKind(kind)
	return p, err
}

// CreateParty inserts a party with zero balances.
func (r *Repository) CreateParty(ctx context.Context, in PartyInput) (Party, error) {
	return scanParty(r.pool.QueryRow(ctx, `INSERT INTO parties (kind, name, phone, email, address)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+partyColumns, in.Kind, in.Name, in.Phone, in.Email, in.Address))
}

// UpdateParty rewrites contact details. Balances are never touched here.
func (r *Repository) UpdateParty(ctx context.Context, id int64, in PartyInput) (Party, error) {
	return scanParty(r.pool.QueryRow(ctx, `UPDATE parties SET name = $2, phone = $3, email = $4, address = $5, updated_at = NOW()
WHERE id = $1
RETURNING `+partyColumns, id, in.Name, in.Phone, in.Email, in.Address))
}

// DeleteParty removes a party that has no ledger history.
func (r *Repository) DeleteParty(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM parties WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrPartyInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartyNotFound
	}
	return nil
}

// GetParty loads a party.
func (r *Repository) GetParty(ctx context.Context, id int64) (Party, error) {
	return scanParty(r.pool.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id))
}

// ListParties returns a page of parties and the total count.
func (r *Repository) ListParties(ctx context.Context, filter PartyFilter) ([]Party, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", len(args), len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM parties`+clause, args...).Scan(&total); err != nil {
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
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM parties%s ORDER BY name, id LIMIT $%d OFFSET $%d`, partyColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Party, 0)
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Statement lists ledger entries for a party, newest first.
func (r *Repository) Statement(ctx context.Context, partyID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, party_id, kind, amount, spent, reference, created_at
FROM party_ledger WHERE party_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, partyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.PartyID, &kind, &e.Amount, &e.Spent, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EntryKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// BalanceDrift compares every party projection with its ledger sums.
func (r *Repository) BalanceDrift(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.balance, COALESCE(l.balance, 0), p.total_spent, COALESCE(l.spent, 0)
FROM parties p
LEFT JOIN (
    SELECT party_id, SUM(amount) AS balance, SUM(spent) AS spent
    FROM party_ledger GROUP BY party_id
) l ON l.party_id = p.id
WHERE p.balance <> COALESCE(l.balance, 0) OR p.total_spent <> COALESCE(l.spent, 0)
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Drift, 0)
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.PartyID, &d.Name, &d.StoredBalance, &d.LedgerBalance, &d.StoredSpent, &d.LedgerSpent); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// NewLedgerTx adapts a pgx transaction into a LedgerTx.
func NewLedgerTx(q db.DBTX) LedgerTx {
	return &pgTx{q: q}
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) GetPartyForUpdate(ctx context.Context, partyID int64) (Party, error) {
	return scanParty(t.q.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1 FOR UPDATE`, partyID))
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e Entry) (Entry, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO party_ledger (party_id, kind, amount, spent, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, e.PartyID, string(e.Kind), e.Amount, e.Spent, e.Reference, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Entry{}, ErrPartyNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (t *pgTx) ApplyBalanceDelta(ctx context.Context, partyID int64, balanceDelta, spentDelta float64) (Party, error) {
	return scanParty(t.q.QueryRow(ctx, `UPDATE parties
SET balance = balance + $2, total_spent = total_spent + $3, updated_at = NOW()
WHERE id = $1
RETURNING `+partyColumns, partyID, balanceDelta, spentDelta))
}

func (t *pgTx) SumPartyLedger(ctx context.Context, partyID int64) (float64, float64, error) {
	var balance, spent float64
	err := t.q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(spent), 0) FROM party_ledger WHERE party_id = $1`, partyID).Scan(&balance, &spent)
	return balance, spent, err
}

func (t *pgTx) InsertExpense(ctx context.Context, e Expense) error {
	var partyID *int64
	if e.PartyID != 0 {
		partyID = &e.PartyID
	}
	_, err := t.q.Exec(ctx, `INSERT INTO expenses (category, amount, description, party_id, method) VALUES ($1, $2, $3, $4, $5)`,
		e.Category, e.Amount, e.Description, partyID, e.Method)
	return err
}
