package production_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/production"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/shared"
)

type recordingLocker struct{ keys []string }

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	return fn(ctx)
}

type outcomeObserver struct{ outcomes []string }

func (o *outcomeObserver) ObserveProduction(outcome string) {
	o.outcomes = append(o.outcomes, outcome)
}

var fixedNow = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    *memoryStore
	svc      *production.Service
	locker   *recordingLocker
	observer *outcomeObserver
	flour    inventory.Item
	butter   inventory.Item
}

const breadID = int64(7)

func newFixture(flourStock, butterStock float64, allowNegative bool) *fixture {
	store := newMemoryStore()
	f := &fixture{store: store, locker: &recordingLocker{}, observer: &outcomeObserver{}}
	f.flour = store.Seed(inventory.Item{Name: "Flour", Unit: "kg", CurrentStock: flourStock, CostPerUnit: 1.2})
	f.butter = store.Seed(inventory.Item{Name: "Butter", Unit: "kg", CurrentStock: butterStock, CostPerUnit: 8})
	store.addProduct(breadID, "Sourdough",
		catalog.Ingredient{InventoryItemID: f.flour.ID, Quantity: 0.5, Unit: "kg"},
		catalog.Ingredient{InventoryItemID: f.butter.ID, Quantity: 0.2, Unit: "kg"},
	)
	f.svc = production.NewService(store, inventory.NewLedger(allowNegative), production.ServiceDeps{
		Locker:   f.locker,
		Observer: f.observer,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) schedule(t *testing.T, qty float64) production.Planned {
	t.Helper()
	planned, err := f.svc.CreateSchedule(context.Background(), production.CreateInput{ProductID: breadID, Quantity: qty})
	require.NoError(t, err)
	return planned
}

func (f *fixture) requireReconciled(t *testing.T) {
	t.Helper()
	for _, id := range []int64{f.flour.ID, f.butter.ID} {
		require.InDelta(t, f.store.LedgerSum(id), f.store.Item(id).CurrentStock, 1e-9)
	}
}

func TestProcessProductionDrawsScaledIngredients(t *testing.T) {
	f := newFixture(10, 5, false)
	planned := f.schedule(t, 5)

	result, err := f.svc.ProcessProduction(context.Background(), planned.ID, 5, 3)
	require.NoError(t, err)
	require.Equal(t, production.StatusCompleted, result.Schedule.Status)
	require.NotNil(t, result.Schedule.ActualQuantity)
	require.InDelta(t, 5.0, *result.Schedule.ActualQuantity, 1e-9)
	require.NotNil(t, result.Schedule.CompletedAt)
	require.Len(t, result.Consumed, 2)
	require.InDelta(t, 2.5, result.Consumed[0].Quantity, 1e-9)
	require.InDelta(t, 7.5, result.Consumed[0].StockAfter, 1e-9)

	require.InDelta(t, 7.5, f.store.Item(f.flour.ID).CurrentStock, 1e-9)
	require.InDelta(t, 4.0, f.store.Item(f.butter.ID).CurrentStock, 1e-9)
	rows := f.store.Transactions(f.flour.ID)
	last := rows[len(rows)-1]
	require.Equal(t, inventory.TransactionTypeOut, last.Type)
	require.Equal(t, "Production #1", last.Reason)
	require.Equal(t, "Sourdough", last.Reference)
	require.Equal(t, []string{shared.ProductionLockKey(planned.ID)}, f.locker.keys)
	require.Equal(t, []string{"completed"}, f.observer.outcomes)
	f.requireReconciled(t)
}

func TestProcessProductionTwiceLeavesStockUnchanged(t *testing.T) {
	f := newFixture(10, 5, false)
	planned := f.schedule(t, 2)
	ctx := context.Background()

	_, err := f.svc.ProcessProduction(ctx, planned.ID, 2, 1)
	require.NoError(t, err)
	flour := f.store.Item(f.flour.ID).CurrentStock
	rows := len(f.store.Transactions(f.flour.ID))

	_, err = f.svc.ProcessProduction(ctx, planned.ID, 2, 1)
	require.ErrorIs(t, err, production.ErrAlreadyCompleted)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.InDelta(t, flour, f.store.Item(f.flour.ID).CurrentStock, 1e-9)
	require.Len(t, f.store.Transactions(f.flour.ID), rows)
	require.Equal(t, []string{"completed", "rejected"}, f.observer.outcomes)
}

func TestProcessProductionGuards(t *testing.T) {
	f := newFixture(10, 5, false)
	planned := f.schedule(t, 1)
	ctx := context.Background()

	_, err := f.svc.ProcessProduction(ctx, 404, 1, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Contains(t, err.Error(), "production schedule not found")

	for _, qty := range []float64{0, -3} {
		_, err = f.svc.ProcessProduction(ctx, planned.ID, qty, 1)
		require.ErrorIs(t, err, shared.ErrInvalidInput)
	}
	require.Equal(t, production.StatusScheduled, f.store.schedule(planned.ID).Status)
}

func TestProcessProductionInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(10, 0.5, false)
	planned := f.schedule(t, 4)

	_, err := f.svc.ProcessProduction(context.Background(), planned.ID, 4, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.InDelta(t, 10.0, f.store.Item(f.flour.ID).CurrentStock, 1e-9)
	require.InDelta(t, 0.5, f.store.Item(f.butter.ID).CurrentStock, 1e-9)
	require.Equal(t, production.StatusScheduled, f.store.schedule(planned.ID).Status)
	f.requireReconciled(t)
}

func TestProcessProductionAllowsNegativeWhenConfigured(t *testing.T) {
	f := newFixture(10, 0.5, true)
	planned := f.schedule(t, 4)

	_, err := f.svc.ProcessProduction(context.Background(), planned.ID, 4, 1)
	require.NoError(t, err)
	require.InDelta(t, -0.3, f.store.Item(f.butter.ID).CurrentStock, 1e-9)
	f.requireReconciled(t)
}

func TestCreateScheduleReportsRequirements(t *testing.T) {
	f := newFixture(10, 0.5, false)

	planned := f.schedule(t, 4)
	require.Equal(t, production.StatusScheduled, planned.Status)
	require.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), planned.ScheduledDate)
	require.False(t, planned.Sufficient)
	require.Len(t, planned.IngredientRequirements, 2)
	require.True(t, planned.IngredientRequirements[0].Sufficient)
	require.InDelta(t, 2.0, planned.IngredientRequirements[0].Required, 1e-9)
	require.False(t, planned.IngredientRequirements[1].Sufficient)
	require.InDelta(t, 0.8, planned.IngredientRequirements[1].Required, 1e-9)
	require.InDelta(t, 10.0, f.store.Item(f.flour.ID).CurrentStock, 1e-9)

	_, err := f.svc.CreateSchedule(context.Background(), production.CreateInput{ProductID: 99, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.CreateSchedule(context.Background(), production.CreateInput{ProductID: breadID, Quantity: 0})
	require.ErrorIs(t, err, production.ErrInvalidQuantity)
}

func TestUpdateStatusCannotComplete(t *testing.T) {
	f := newFixture(10, 5, false)
	planned := f.schedule(t, 1)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, planned.ID, production.StatusCompleted, 1)
	require.ErrorIs(t, err, production.ErrInvalidStatus)
	item, err := f.svc.UpdateStatus(ctx, planned.ID, production.StatusDelayed, 1)
	require.NoError(t, err)
	require.Equal(t, production.StatusDelayed, item.Status)

	_, err = f.svc.ProcessProduction(ctx, planned.ID, 1, 1)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, planned.ID, production.StatusInProgress, 1)
	require.ErrorIs(t, err, production.ErrAlreadyCompleted)
}

func TestHandlerProcess(t *testing.T) {
	f := newFixture(10, 5, false)
	planned := f.schedule(t, 2)
	handler := production.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, httpx.NewValidator(), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &shared.Session{}
			sess.SetUser(1, rbac.RoleAdmin)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	r.Route("/api/production-schedule", handler.MountRoutes)

	post := func(body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/production-schedule/1/process", bytes.NewReader(raw)))
		return rec
	}

	require.Equal(t, http.StatusBadRequest, post(map[string]any{"actualQuantity": 0}).Code)

	rec := post(map[string]any{"actualQuantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "Production #1 processed", resp.Message)
	require.Equal(t, production.StatusCompleted, f.store.schedule(planned.ID).Status)

	require.Equal(t, http.StatusConflict, post(map[string]any{"actualQuantity": 2}).Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/production-schedule?from=2024-03-01&to=2024-03-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page shared.Page[production.ScheduleItem]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
}
