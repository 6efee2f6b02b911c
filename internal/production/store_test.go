package production_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/inventory/inventorytest"
	"github.com/ovenly/ovenly/internal/production"
)

// memoryStore keeps schedules and bills of materials over the in-memory stock ledger.
type memoryStore struct {
	*inventorytest.Store

	txMu      sync.Mutex
	mu        sync.Mutex
	products  map[int64]string
	boms      map[int64][]catalog.Ingredient
	schedules map[int64]production.ScheduleItem
	nextID    int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		Store:     inventorytest.NewStore(),
		products:  make(map[int64]string),
		boms:      make(map[int64][]catalog.Ingredient),
		schedules: make(map[int64]production.ScheduleItem),
	}
}

func (m *memoryStore) addProduct(id int64, name string, bom ...catalog.Ingredient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = name
	for i := range bom {
		bom[i].ProductID = id
	}
	m.boms[id] = bom
}

func (m *memoryStore) schedule(id int64) production.ScheduleItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[id]
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, production.TxRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	schedules := make(map[int64]production.ScheduleItem, len(m.schedules))
	for k, v := range m.schedules {
		schedules[k] = v
	}
	m.mu.Unlock()
	restoreStock := m.Store.Snapshot()
	if err := fn(ctx, m); err != nil {
		restoreStock()
		m.mu.Lock()
		m.schedules = schedules
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryStore) CreateSchedule(_ context.Context, in production.CreateInput) (production.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.products[in.ProductID]
	if !ok {
		return production.ScheduleItem{}, catalog.ErrProductNotFound
	}
	m.nextID++
	item := production.ScheduleItem{
		ID:            m.nextID,
		ProductID:     in.ProductID,
		ProductName:   name,
		Quantity:      in.Quantity,
		ScheduledDate: in.ScheduledDate,
		Status:        production.StatusScheduled,
		Notes:         in.Notes,
		CreatedAt:     time.Now().UTC(),
	}
	m.schedules[item.ID] = item
	return item, nil
}

func (m *memoryStore) GetSchedule(_ context.Context, id int64) (production.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.schedules[id]
	if !ok {
		return production.ScheduleItem{}, production.ErrScheduleNotFound
	}
	return item, nil
}

func (m *memoryStore) ListSchedules(_ context.Context, filter production.ListFilter) ([]production.ScheduleItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]production.ScheduleItem, 0)
	for _, s := range m.schedules {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && s.ScheduledDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && s.ScheduledDate.After(filter.To) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, len(out), nil
}

func (m *memoryStore) Ingredients(_ context.Context, productID int64) ([]catalog.Ingredient, error) {
	m.mu.Lock()
	bom := append([]catalog.Ingredient(nil), m.boms[productID]...)
	m.mu.Unlock()
	for i := range bom {
		it := m.Store.Item(bom[i].InventoryItemID)
		bom[i].ItemName = it.Name
		bom[i].CostPerUnit = it.CostPerUnit
		bom[i].CurrentStock = it.CurrentStock
	}
	sort.Slice(bom, func(i, j int) bool { return bom[i].InventoryItemID < bom[j].InventoryItemID })
	return bom, nil
}

func (m *memoryStore) GetScheduleForUpdate(ctx context.Context, id int64) (production.ScheduleItem, error) {
	return m.GetSchedule(ctx, id)
}

func (m *memoryStore) Complete(_ context.Context, id int64, actual float64, at time.Time) (production.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.schedules[id]
	if !ok {
		return production.ScheduleItem{}, production.ErrScheduleNotFound
	}
	item.Status = production.StatusCompleted
	item.ActualQuantity = &actual
	item.CompletedAt = &at
	m.schedules[id] = item
	return item, nil
}

func (m *memoryStore) SetStatus(_ context.Context, id int64, status production.Status) (production.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.schedules[id]
	if !ok {
		return production.ScheduleItem{}, production.ErrScheduleNotFound
	}
	item.Status = status
	m.schedules[id] = item
	return item, nil
}
