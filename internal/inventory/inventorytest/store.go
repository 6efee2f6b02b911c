// Package inventorytest provides an in-memory inventory store for tests in
// packages that post stock movements.
package inventorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovenly/ovenly/internal/inventory"
)

// Store implements inventory.RepositoryPort and inventory.TxRepository in memory.
// WithTx restores the previous state when the callback fails.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	items      map[int64]inventory.Item
	ledger     []inventory.Transaction
	nextItemID int64
	nextTxID   int64

	// FailInsert, when set, is returned by InsertTransaction.
	FailInsert error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{items: make(map[int64]inventory.Item)}
}

// Seed stores an item with an opening ledger row matching its stock so the
// ledger invariant holds from the start.
func (s *Store) Seed(it inventory.Item) inventory.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == 0 {
		s.nextItemID++
		it.ID = s.nextItemID
	} else if it.ID > s.nextItemID {
		s.nextItemID = it.ID
	}
	if it.Unit == "" {
		it.Unit = "kg"
	}
	s.items[it.ID] = it
	if it.CurrentStock != 0 {
		s.nextTxID++
		s.ledger = append(s.ledger, inventory.Transaction{
			ID:        s.nextTxID,
			ItemID:    it.ID,
			Type:      inventory.TransactionTypeAdjust,
			Quantity:  it.CurrentStock,
			UnitCost:  it.CostPerUnit,
			Reason:    "seed",
			CreatedAt: time.Now().UTC(),
		})
	}
	return it
}

// Item returns the current state of an item.
func (s *Store) Item(id int64) inventory.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

// Transactions returns the ledger rows of an item in posting order.
func (s *Store) Transactions(itemID int64) []inventory.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Transaction
	for _, t := range s.ledger {
		if t.ItemID == itemID {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot captures the store and returns a function restoring it.
func (s *Store) Snapshot() (restore func()) {
	s.mu.Lock()
	items := make(map[int64]inventory.Item, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	ledger := append([]inventory.Transaction(nil), s.ledger...)
	nextItemID, nextTxID := s.nextItemID, s.nextTxID
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.items = items
		s.ledger = ledger
		s.nextItemID, s.nextTxID = nextItemID, nextTxID
	}
}

// WithTx runs fn serialised against other transactions, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	restore := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		restore()
		return err
	}
	return nil
}

// InsertItem implements inventory.TxRepository.
func (s *Store) InsertItem(_ context.Context, in inventory.ItemInput) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItemID++
	now := time.Now().UTC()
	it := inventory.Item{
		ID:          s.nextItemID,
		Name:        in.Name,
		MinLevel:    in.MinLevel,
		Unit:        in.Unit,
		CostPerUnit: in.CostPerUnit,
		Supplier:    in.Supplier,
		CategoryID:  in.CategoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.items[it.ID] = it
	return it, nil
}

// GetItemForUpdate implements inventory.LedgerTx.
func (s *Store) GetItemForUpdate(_ context.Context, itemID int64) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return it, nil
}

// InsertTransaction implements inventory.LedgerTx.
func (s *Store) InsertTransaction(_ context.Context, tx inventory.Transaction) (inventory.Transaction, error) {
	if s.FailInsert != nil {
		return inventory.Transaction{}, s.FailInsert
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[tx.ItemID]; !ok {
		return inventory.Transaction{}, inventory.ErrItemNotFound
	}
	s.nextTxID++
	tx.ID = s.nextTxID
	s.ledger = append(s.ledger, tx)
	return tx, nil
}

// ApplyStockDelta implements inventory.LedgerTx.
func (s *Store) ApplyStockDelta(_ context.Context, itemID int64, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return 0, inventory.ErrItemNotFound
	}
	it.CurrentStock += delta
	it.UpdatedAt = time.Now().UTC()
	s.items[itemID] = it
	return it.CurrentStock, nil
}

// SetCostPerUnit implements inventory.LedgerTx.
func (s *Store) SetCostPerUnit(_ context.Context, itemID int64, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return inventory.ErrItemNotFound
	}
	it.CostPerUnit = cost
	s.items[itemID] = it
	return nil
}

// SumLedger implements inventory.LedgerTx.
func (s *Store) SumLedger(_ context.Context, itemID int64) (float64, error) {
	return s.LedgerSum(itemID), nil
}

// LedgerSum is the signed sum of an item's ledger rows.
func (s *Store) LedgerSum(itemID int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, t := range s.ledger {
		if t.ItemID == itemID {
			total += t.Delta()
		}
	}
	return total
}

// ListItems implements inventory.RepositoryPort.
func (s *Store) ListItems(_ context.Context, filter inventory.ListFilter) ([]inventory.Item, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []inventory.Item
	for _, it := range s.items {
		if filter.Search != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.CategoryID != 0 && (it.CategoryID == nil || *it.CategoryID != filter.CategoryID) {
			continue
		}
		all = append(all, it)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	start := (filter.Page - 1) * filter.PerPage
	if filter.PerPage <= 0 || start < 0 {
		return all, total, nil
	}
	if start >= total {
		return []inventory.Item{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// GetItem implements inventory.RepositoryPort.
func (s *Store) GetItem(ctx context.Context, id int64) (inventory.Item, error) {
	return s.GetItemForUpdate(ctx, id)
}

// UpdateItem implements inventory.RepositoryPort.
func (s *Store) UpdateItem(_ context.Context, id int64, in inventory.ItemInput) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	it.Name, it.MinLevel, it.Unit, it.Supplier, it.CategoryID = in.Name, in.MinLevel, in.Unit, in.Supplier, in.CategoryID
	s.items[id] = it
	return it, nil
}

// DeleteItem implements inventory.RepositoryPort.
func (s *Store) DeleteItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return inventory.ErrItemNotFound
	}
	for _, t := range s.ledger {
		if t.ItemID == id {
			return inventory.ErrItemInUse
		}
	}
	delete(s.items, id)
	return nil
}

// LowStockItems implements inventory.RepositoryPort.
func (s *Store) LowStockItems(_ context.Context) ([]inventory.LowStockItem, error) {
	s.mu.Lock()
	items := make([]inventory.Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	s.mu.Unlock()
	return inventory.FilterLowStock(items), nil
}

// History implements inventory.RepositoryPort.
func (s *Store) History(_ context.Context, itemID int64, limit int) ([]inventory.Transaction, error) {
	rows := s.Transactions(itemID)
	out := make([]inventory.Transaction, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// StockDrift implements inventory.RepositoryPort.
func (s *Store) StockDrift(_ context.Context) ([]inventory.Drift, error) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]inventory.Drift, 0)
	for _, id := range ids {
		it := s.Item(id)
		sum := s.LedgerSum(id)
		if diff := it.CurrentStock - sum; diff > 1e-9 || diff < -1e-9 {
			out = append(out, inventory.Drift{ItemID: id, Name: it.Name, StoredStock: it.CurrentStock, LedgerStock: sum})
		}
	}
	return out, nil
}

// Corrupt overwrites an item's stored stock without a ledger row.
func (s *Store) Corrupt(itemID int64, stock float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[itemID]
	it.CurrentStock = stock
	s.items[itemID] = it
}
