package purchasing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/purchasing"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/shared"
)

type countingRefresher struct{ calls int }

func (c *countingRefresher) EnqueueCostRefresh(context.Context) error {
	c.calls++
	return nil
}

type recordingNotifier struct{ bumps int }

func (n *recordingNotifier) Bump(context.Context) error {
	n.bumps++
	return nil
}

type recordingLocker struct{ keys []string }

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	return fn(ctx)
}

type fixture struct {
	store     *memoryStore
	svc       *purchasing.Service
	refresher *countingRefresher
	notifier  *recordingNotifier
	locker    *recordingLocker
	flour     inventory.Item
	sugar     inventory.Item
	supplier  accounts.Party
	customer  accounts.Party
}

func newFixture() *fixture {
	store := newMemoryStore()
	f := &fixture{
		store:     store,
		refresher: &countingRefresher{},
		notifier:  &recordingNotifier{},
		locker:    &recordingLocker{},
	}
	f.flour = store.stockStore.Seed(inventory.Item{Name: "Flour", Unit: "kg", CurrentStock: 10, CostPerUnit: 2})
	f.sugar = store.stockStore.Seed(inventory.Item{Name: "Sugar", Unit: "kg", CurrentStock: 0, CostPerUnit: 0})
	f.supplier = store.partyStore.Seed(accounts.Party{Kind: accounts.KindSupplier, Name: "Mill Co"})
	f.customer = store.partyStore.Seed(accounts.Party{Kind: accounts.KindCustomer, Name: "Cafe Rosa"})
	f.svc = purchasing.NewService(store, inventory.NewLedger(false), purchasing.ServiceDeps{
		Idempotency: newMemoryIdempotency(),
		Locker:      f.locker,
		Notifier:    f.notifier,
		Refresher:   f.refresher,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) requireReconciled(t *testing.T) {
	t.Helper()
	for _, id := range []int64{f.flour.ID, f.sugar.ID} {
		require.InDelta(t, f.store.stockStore.LedgerSum(id), f.store.item(id).CurrentStock, 1e-9)
	}
	for _, id := range []int64{f.supplier.ID, f.customer.ID} {
		balance, spent := f.store.partyStore.LedgerSums(id)
		p := f.store.partyStore.Party(id)
		require.InDelta(t, balance, p.Balance, 1e-9)
		require.InDelta(t, spent, p.TotalSpent, 1e-9)
	}
}

func TestStockSyncReceivesAtWeightedAverage(t *testing.T) {
	f := newFixture()
	partyID := f.supplier.ID

	p, err := f.svc.CreatePurchaseWithStockSync(context.Background(), purchasing.CreateInput{
		SupplierName: " Mill Co ",
		PartyID:      &partyID,
		Items: []purchasing.LineInput{
			{InventoryItemID: f.flour.ID, Quantity: 5, UnitPrice: 3},
			{InventoryItemID: f.sugar.ID, Quantity: 4, UnitPrice: 1.25},
		},
		ActorID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusPending, p.Status)
	require.Equal(t, "Mill Co", p.SupplierName)
	require.Equal(t, "cash", p.PaymentMethod)
	require.InDelta(t, 20.0, p.TotalAmount, 1e-9)
	require.Len(t, p.Items, 2)
	require.True(t, p.StockSynced)

	flour := f.store.item(f.flour.ID)
	require.InDelta(t, 15.0, flour.CurrentStock, 1e-9)
	require.InDelta(t, 7.0/3.0, flour.CostPerUnit, 1e-4)
	sugar := f.store.item(f.sugar.ID)
	require.InDelta(t, 4.0, sugar.CurrentStock, 1e-9)
	require.InDelta(t, 1.25, sugar.CostPerUnit, 1e-9)

	rows := f.store.stockStore.Transactions(f.flour.ID)
	last := rows[len(rows)-1]
	require.Equal(t, inventory.TransactionTypeIn, last.Type)
	require.Equal(t, "Purchase #1", last.Reason)
	require.Equal(t, p.Number, last.Reference)

	require.InDelta(t, 20.0, f.store.partyStore.Party(f.supplier.ID).Balance, 1e-9)
	require.Equal(t, 1, f.refresher.calls)
	require.Equal(t, 1, f.notifier.bumps)
	f.requireReconciled(t)
}

func TestStockSyncRollsBackOnFailure(t *testing.T) {
	cases := map[string]func(f *fixture) purchasing.CreateInput{
		"unknown item": func(f *fixture) purchasing.CreateInput {
			return purchasing.CreateInput{SupplierName: "Mill Co", Items: []purchasing.LineInput{
				{InventoryItemID: f.flour.ID, Quantity: 5, UnitPrice: 3},
				{InventoryItemID: 99, Quantity: 1, UnitPrice: 1},
			}}
		},
		"customer as supplier": func(f *fixture) purchasing.CreateInput {
			id := f.customer.ID
			return purchasing.CreateInput{SupplierName: "Mill Co", PartyID: &id, Items: []purchasing.LineInput{
				{InventoryItemID: f.flour.ID, Quantity: 5, UnitPrice: 3},
			}}
		},
		"unknown party": func(f *fixture) purchasing.CreateInput {
			id := int64(42)
			return purchasing.CreateInput{SupplierName: "Mill Co", PartyID: &id, Items: []purchasing.LineInput{
				{InventoryItemID: f.flour.ID, Quantity: 5, UnitPrice: 3},
			}}
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.CreatePurchaseWithStockSync(context.Background(), build(f))
			require.Error(t, err)

			flour := f.store.item(f.flour.ID)
			require.InDelta(t, 10.0, flour.CurrentStock, 1e-9)
			require.InDelta(t, 2.0, flour.CostPerUnit, 1e-9)
			require.Len(t, f.store.stockStore.Transactions(f.flour.ID), 1)
			require.Zero(t, f.store.purchaseCount())
			require.Empty(t, f.store.partyStore.Entries(f.supplier.ID))
			require.Zero(t, f.refresher.calls)
			f.requireReconciled(t)
		})
	}
}

func TestCreatePurchaseValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreatePurchaseWithStockSync(ctx, purchasing.CreateInput{SupplierName: "Mill Co"})
	require.ErrorIs(t, err, purchasing.ErrNoLines)
	_, err = f.svc.CreatePurchaseWithStockSync(ctx, purchasing.CreateInput{SupplierName: "Mill Co", Items: []purchasing.LineInput{{InventoryItemID: f.flour.ID, Quantity: 0, UnitPrice: 1}}})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = f.svc.CreatePurchaseWithStockSync(ctx, purchasing.CreateInput{Items: []purchasing.LineInput{{InventoryItemID: f.flour.ID, Quantity: 1, UnitPrice: 1}}})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	require.Zero(t, f.store.purchaseCount())
}

func TestIdempotencyKeyBlocksReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	in := purchasing.CreateInput{
		SupplierName:   "Mill Co",
		Items:          []purchasing.LineInput{{InventoryItemID: f.flour.ID, Quantity: 5, UnitPrice: 3}},
		IdempotencyKey: "req-1",
	}

	_, err := f.svc.CreatePurchaseWithStockSync(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.CreatePurchaseWithStockSync(ctx, in)
	require.ErrorIs(t, err, purchasing.ErrDuplicateRequest)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.InDelta(t, 15.0, f.store.item(f.flour.ID).CurrentStock, 1e-9)
	require.Equal(t, 1, f.store.purchaseCount())
	require.Equal(t, []string{shared.PurchaseLockKey("req-1"), shared.PurchaseLockKey("req-1")}, f.locker.keys)

	bad := in
	bad.IdempotencyKey = "req-2"
	bad.Items = []purchasing.LineInput{{InventoryItemID: 99, Quantity: 1, UnitPrice: 1}}
	_, err = f.svc.CreatePurchaseWithStockSync(ctx, bad)
	require.ErrorIs(t, err, shared.ErrNotFound)

	retry := in
	retry.IdempotencyKey = "req-2"
	_, err = f.svc.CreatePurchaseWithStockSync(ctx, retry)
	require.NoError(t, err)
	require.InDelta(t, 20.0, f.store.item(f.flour.ID).CurrentStock, 1e-9)
}

func TestUpdateStatusReceivesUnsyncedPurchase(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.svc.CreatePurchase(ctx, purchasing.CreateInput{
		SupplierName: "Mill Co",
		Items:        []purchasing.LineInput{{InventoryItemID: f.flour.ID, Quantity: 10, UnitPrice: 4}},
	})
	require.NoError(t, err)
	require.False(t, p.StockSynced)
	require.InDelta(t, 10.0, f.store.item(f.flour.ID).CurrentStock, 1e-9)
	require.Zero(t, f.refresher.calls)

	p, err = f.svc.UpdateStatus(ctx, p.ID, purchasing.StatusReceived, 1)
	require.NoError(t, err)
	require.True(t, p.StockSynced)
	flour := f.store.item(f.flour.ID)
	require.InDelta(t, 20.0, flour.CurrentStock, 1e-9)
	require.InDelta(t, 3.0, flour.CostPerUnit, 1e-9)
	require.Equal(t, 1, f.refresher.calls)

	_, err = f.svc.UpdateStatus(ctx, p.ID, purchasing.StatusCancelled, 1)
	require.ErrorIs(t, err, purchasing.ErrInvalidStatus)
	p, err = f.svc.UpdateStatus(ctx, p.ID, purchasing.StatusPaid, 1)
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusPaid, p.Status)
	require.InDelta(t, 20.0, f.store.item(f.flour.ID).CurrentStock, 1e-9)
	f.requireReconciled(t)
}

func TestPaidReceivesUnsyncedPurchase(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.svc.CreatePurchase(ctx, purchasing.CreateInput{
		SupplierName: "Mill Co",
		Items:        []purchasing.LineInput{{InventoryItemID: f.flour.ID, Quantity: 10, UnitPrice: 4}},
	})
	require.NoError(t, err)

	p, err = f.svc.UpdateStatus(ctx, p.ID, purchasing.StatusPaid, 1)
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusPaid, p.Status)
	require.True(t, p.StockSynced)
	flour := f.store.item(f.flour.ID)
	require.InDelta(t, 20.0, flour.CurrentStock, 1e-9)
	require.InDelta(t, 3.0, flour.CostPerUnit, 1e-9)
	require.Equal(t, 1, f.refresher.calls)
	f.requireReconciled(t)
}

func TestCancelledIsTerminal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, err := f.svc.CreatePurchase(ctx, purchasing.CreateInput{
		SupplierName: "Mill Co",
		Items:        []purchasing.LineInput{{InventoryItemID: f.flour.ID, Quantity: 1, UnitPrice: 1}},
	})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, p.ID, purchasing.StatusCancelled, 1)
	require.NoError(t, err)
	for _, next := range []purchasing.Status{purchasing.StatusPending, purchasing.StatusReceived, purchasing.StatusPaid} {
		_, err = f.svc.UpdateStatus(ctx, p.ID, next, 1)
		require.ErrorIs(t, err, purchasing.ErrInvalidStatus)
	}
	require.InDelta(t, 10.0, f.store.item(f.flour.ID).CurrentStock, 1e-9)

	_, err = f.svc.UpdateStatus(ctx, 77, purchasing.StatusPaid, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHandlerStockSync(t *testing.T) {
	f := newFixture()
	handler := purchasing.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, httpx.NewValidator(), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &shared.Session{}
			sess.SetUser(1, rbac.RoleAdmin)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	r.Route("/api/purchases", handler.MountRoutes)

	body, _ := json.Marshal(map[string]any{
		"supplierName":  "Mill Co",
		"paymentMethod": "card",
		"items":         []map[string]any{{"inventoryItemId": f.flour.ID, "quantity": 5, "unitPrice": 3}},
	})
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/purchases/with-stock-sync", bytes.NewReader(body))
		req.Header.Set(purchasing.IdempotencyHeader, "abc")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	rec := send()
	require.Equal(t, http.StatusCreated, rec.Code)
	var p purchasing.Purchase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Equal(t, "card", p.PaymentMethod)
	require.InDelta(t, 15.0, p.TotalAmount, 1e-9)
	require.Equal(t, int64(1), p.CreatedBy)

	require.Equal(t, http.StatusConflict, send().Code)
	require.InDelta(t, 15.0, f.store.item(f.flour.ID).CurrentStock, 1e-9)

	empty, _ := json.Marshal(map[string]any{"supplierName": "Mill Co", "items": []any{}})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/purchases/with-stock-sync", bytes.NewReader(empty)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/purchases/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Len(t, p.Items, 1)
}
