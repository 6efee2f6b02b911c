package purchasing_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ovenly/ovenly/internal/accounts/accountstest"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/inventory/inventorytest"
	"github.com/ovenly/ovenly/internal/purchasing"
	"github.com/ovenly/ovenly/internal/shared"
)

type (
	stockStore = inventorytest.Store
	partyStore = accountstest.Store
)

// memoryStore backs purchases with the in-memory stock and party ledgers.
type memoryStore struct {
	*stockStore
	*partyStore

	txMu      sync.Mutex
	mu        sync.Mutex
	purchases map[int64]purchasing.Purchase
	nextID    int64
	nextLine  int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		stockStore: inventorytest.NewStore(),
		partyStore: accountstest.NewStore(),
		purchases:  make(map[int64]purchasing.Purchase),
	}
}

func (m *memoryStore) snapshot() func() {
	m.mu.Lock()
	purchases := make(map[int64]purchasing.Purchase, len(m.purchases))
	for k, v := range m.purchases {
		purchases[k] = v
	}
	nextID, nextLine := m.nextID, m.nextLine
	m.mu.Unlock()
	restoreStock := m.stockStore.Snapshot()
	restoreParties := m.partyStore.Snapshot()
	return func() {
		restoreStock()
		restoreParties()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.purchases, m.nextID, m.nextLine = purchases, nextID, nextLine
	}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, purchasing.TxRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	restore := m.snapshot()
	if err := fn(ctx, m); err != nil {
		restore()
		return err
	}
	return nil
}

func (m *memoryStore) InsertPurchase(ctx context.Context, p purchasing.Purchase) (purchasing.Purchase, error) {
	if p.PartyID != nil {
		if _, err := m.partyStore.GetParty(ctx, *p.PartyID); err != nil {
			return purchasing.Purchase{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now().UTC()
	m.purchases[p.ID] = p
	return p, nil
}

func (m *memoryStore) InsertPurchaseItem(ctx context.Context, it purchasing.Item) (purchasing.Item, error) {
	if _, err := m.stockStore.GetItem(ctx, it.InventoryItemID); err != nil {
		return purchasing.Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLine++
	it.ID = m.nextLine
	p := m.purchases[it.PurchaseID]
	p.Items = append(p.Items, it)
	m.purchases[it.PurchaseID] = p
	return it, nil
}

func (m *memoryStore) GetPurchaseForUpdate(ctx context.Context, id int64) (purchasing.Purchase, error) {
	return m.GetPurchase(ctx, id)
}

func (m *memoryStore) SetStatus(_ context.Context, id int64, status purchasing.Status, stockSynced bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return purchasing.ErrPurchaseNotFound
	}
	p.Status, p.StockSynced = status, stockSynced
	m.purchases[id] = p
	return nil
}

func (m *memoryStore) GetPurchase(_ context.Context, id int64) (purchasing.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return purchasing.Purchase{}, purchasing.ErrPurchaseNotFound
	}
	p.Items = append([]purchasing.Item(nil), p.Items...)
	return p, nil
}

func (m *memoryStore) ListPurchases(_ context.Context, filter purchasing.ListFilter) ([]purchasing.Purchase, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]purchasing.Purchase, 0)
	for _, p := range m.purchases {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memoryStore) purchaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.purchases)
}

func (m *memoryStore) item(id int64) inventory.Item {
	return m.stockStore.Item(id)
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
