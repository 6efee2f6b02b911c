package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTx is the set of row-locked operations a ledger posting needs. Other
// modules embed it in their own transactional repositories so that stock
// movements commit atomically with their purchase or production rows.
type LedgerTx interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	// ApplyStockDelta performs current_stock = current_stock + delta and returns the new value.
	ApplyStockDelta(ctx context.Context, itemID int64, delta float64) (float64, error)
	SetCostPerUnit(ctx context.Context, itemID int64, cost float64) error
	SumLedger(ctx context.Context, itemID int64) (float64, error)
}

// Observer receives ledger events for metrics.
type Observer interface {
	ObserveStockMovement(kind string)
}

// Ledger posts stock movements. It holds policy only and no connection state.
type Ledger struct {
	allowNegative bool
	observer      Observer
	now           func() time.Time
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithObserver reports each posting to o.
func WithObserver(o Observer) LedgerOption {
	return func(l *Ledger) { l.observer = o }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger constructs a Ledger. allowNegative permits stock to go below zero.
func NewLedger(allowNegative bool, opts ...LedgerOption) *Ledger {
	l := &Ledger{allowNegative: allowNegative, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AllowsNegative reports the configured negative-stock policy.
func (l *Ledger) AllowsNegative() bool {
	return l.allowNegative
}

// Post inserts a ledger row and applies its signed delta to current stock.
func (l *Ledger) Post(ctx context.Context, tx LedgerTx, m Movement) (Transaction, error) {
	if err := validateMovement(m); err != nil {
		return Transaction{}, err
	}
	item, err := tx.GetItemForUpdate(ctx, m.ItemID)
	if err != nil {
		return Transaction{}, err
	}
	row, _, err := l.post(ctx, tx, item, m, item.CostPerUnit)
	return row, err
}

// Receive posts an inbound movement and recomputes the weighted-average cost
// from the stock held before the movement.
func (l *Ledger) Receive(ctx context.Context, tx LedgerTx, r Receipt) (ReceiptResult, error) {
	if r.Quantity <= 0 {
		return ReceiptResult{}, ErrInvalidQuantity
	}
	if r.UnitPrice < 0 {
		return ReceiptResult{}, ErrInvalidUnitCost
	}
	item, err := tx.GetItemForUpdate(ctx, r.ItemID)
	if err != nil {
		return ReceiptResult{}, err
	}
	m := Movement{
		ItemID:    r.ItemID,
		Type:      TransactionTypeIn,
		Quantity:  r.Quantity,
		Reason:    r.Reason,
		Reference: r.Reference,
		ActorID:   r.ActorID,
	}
	row, newStock, err := l.post(ctx, tx, item, m, r.UnitPrice)
	if err != nil {
		return ReceiptResult{}, err
	}
	newCost := WeightedAverageCost(item.CurrentStock, item.CostPerUnit, r.Quantity, r.UnitPrice)
	if err := tx.SetCostPerUnit(ctx, r.ItemID, newCost); err != nil {
		return ReceiptResult{}, err
	}
	return ReceiptResult{Transaction: row, NewStock: newStock, NewCost: newCost}, nil
}

func (l *Ledger) post(ctx context.Context, tx LedgerTx, item Item, m Movement, unitCost float64) (Transaction, float64, error) {
	delta := SignedQuantity(m.Type, m.Quantity)
	if !l.allowNegative && delta < 0 {
		after := decimal.NewFromFloat(item.CurrentStock).Add(decimal.NewFromFloat(delta))
		if after.IsNegative() {
			return Transaction{}, 0, ErrInsufficientStock
		}
	}
	row, err := tx.InsertTransaction(ctx, Transaction{
		ItemID:    m.ItemID,
		Type:      m.Type,
		Quantity:  m.Quantity,
		UnitCost:  unitCost,
		Reason:    m.Reason,
		Reference: m.Reference,
		CreatedBy: m.ActorID,
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return Transaction{}, 0, err
	}
	newStock, err := tx.ApplyStockDelta(ctx, m.ItemID, delta)
	if err != nil {
		return Transaction{}, 0, err
	}
	if l.observer != nil {
		l.observer.ObserveStockMovement(string(m.Type))
	}
	return row, newStock, nil
}

func validateMovement(m Movement) error {
	if !m.Type.Valid() {
		return ErrInvalidType
	}
	if m.Quantity == 0 {
		return ErrInvalidQuantity
	}
	if m.Type != TransactionTypeAdjust && m.Quantity < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// WeightedAverageCost returns (s0*c0 + q*p)/(s0+q). When the resulting stock
// is not positive the receipt price is used as-is.
func WeightedAverageCost(s0, c0, q, p float64) float64 {
	stock := decimal.NewFromFloat(s0)
	qty := decimal.NewFromFloat(q)
	total := stock.Add(qty)
	if !total.IsPositive() {
		return p
	}
	value := stock.Mul(decimal.NewFromFloat(c0)).Add(qty.Mul(decimal.NewFromFloat(p)))
	return value.DivRound(total, 8).InexactFloat64()
}

// FilterLowStock selects items at or below their minimum level, largest shortage first.
func FilterLowStock(items []Item) []LowStockItem {
	out := make([]LowStockItem, 0)
	for _, it := range items {
		if it.CurrentStock > it.MinLevel {
			continue
		}
		out = append(out, LowStockItem{
			ID:             it.ID,
			Name:           it.Name,
			CurrentStock:   it.CurrentStock,
			MinLevel:       it.MinLevel,
			Unit:           it.Unit,
			Supplier:       it.Supplier,
			ShortageAmount: decimal.NewFromFloat(it.MinLevel).Sub(decimal.NewFromFloat(it.CurrentStock)).InexactFloat64(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ShortageAmount == out[j].ShortageAmount {
			return out[i].ID < out[j].ID
		}
		return out[i].ShortageAmount > out[j].ShortageAmount
	})
	return out
}
