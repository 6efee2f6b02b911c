package costing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/shared"
)

type fakeCatalog struct {
	products   map[int64]catalog.Product
	boms       map[int64][]catalog.Ingredient
	failUpdate map[int64]error
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) Ingredients(_ context.Context, id int64) ([]catalog.Ingredient, error) {
	return f.boms[id], nil
}

func (f *fakeCatalog) ListProductIDs(context.Context) ([]int64, error) {
	var ids []int64
	for id := range f.boms {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeCatalog) UpdateCostAndMargin(_ context.Context, id int64, cost, margin float64) error {
	if err := f.failUpdate[id]; err != nil {
		return err
	}
	p, ok := f.products[id]
	if !ok {
		return catalog.ErrProductNotFound
	}
	p.Cost, p.Margin = cost, margin
	f.products[id] = p
	return nil
}

type mapSettings map[string]string

func (m mapSettings) Load(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (m mapSettings) Save(_ context.Context, values map[string]string) error {
	for k, v := range values {
		m[k] = v
	}
	return nil
}

func scenarioBOM() []catalog.Ingredient {
	return []catalog.Ingredient{
		{InventoryItemID: 1, ItemName: "A", Quantity: 0.5, CostPerUnit: 2},
		{InventoryItemID: 2, ItemName: "B", Quantity: 0.25, CostPerUnit: 8},
	}
}

func newFixture() (*Service, *fakeCatalog, mapSettings) {
	cat := &fakeCatalog{
		products: map[int64]catalog.Product{1: {ID: 1, Name: "Tart", Price: 100}},
		boms:     map[int64][]catalog.Ingredient{1: scenarioBOM()},
	}
	settings := mapSettings{
		KeyLaborCostPerHour:    "25",
		KeyOverheadPercentage:  "15",
		KeyProductionTimeHours: "2",
	}
	return NewService(cat, settings, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), cat, settings
}

func TestCalculateScenario(t *testing.T) {
	s := Settings{LaborCostPerHour: 25, OverheadPercentage: 15, ProductionTimeHours: 2, LaborScalesWithQuantity: true}
	b, err := Calculate(scenarioBOM(), s, 1)
	require.NoError(t, err)
	require.InDelta(t, 3.0, b.MaterialCost, 1e-9)
	require.InDelta(t, 50.0, b.LaborCost, 1e-9)
	require.InDelta(t, 7.95, b.OverheadCost, 1e-9)
	require.InDelta(t, 60.95, b.TotalCost, 1e-9)
	require.InDelta(t, 60.95, b.PerUnitCost, 1e-9)
}

func TestCalculateProperties(t *testing.T) {
	for _, scales := range []bool{true, false} {
		s := Settings{LaborCostPerHour: 18.5, OverheadPercentage: 12.5, ProductionTimeHours: 1.5, LaborScalesWithQuantity: scales}
		for _, n := range []float64{1, 2, 3, 7, 12.5, 100} {
			b, err := Calculate(scenarioBOM(), s, n)
			require.NoError(t, err)
			require.InDelta(t, b.TotalCost, b.MaterialCost+b.LaborCost+b.OverheadCost, 1e-3)
			require.InDelta(t, b.TotalCost/n, b.PerUnitCost, 1e-3)
			require.InDelta(t, 3.0*n, b.MaterialCost, 1e-9)
		}
	}

	fixed := Settings{LaborCostPerHour: 25, ProductionTimeHours: 2}
	b, err := Calculate(nil, fixed, 10)
	require.NoError(t, err)
	require.InDelta(t, 50.0, b.LaborCost, 1e-9, "labor stays per batch when it does not scale")
}

func TestCalculateRejectsNonPositiveQuantity(t *testing.T) {
	for _, q := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Calculate(scenarioBOM(), DefaultSettings(), q)
		require.ErrorIs(t, err, ErrInvalidQuantity)
		require.ErrorIs(t, err, shared.ErrInvalidInput)
	}
}

func TestSettingsFromMap(t *testing.T) {
	s, err := SettingsFromMap(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), s)

	s, err = SettingsFromMap(map[string]string{KeyOverheadPercentage: "7.5", KeyLaborScalesWithQuantity: "false"})
	require.NoError(t, err)
	require.InDelta(t, 7.5, s.OverheadPercentage, 1e-9)
	require.False(t, s.LaborScalesWithQuantity)
	require.InDelta(t, 15.0, s.LaborCostPerHour, 1e-9)

	_, err = SettingsFromMap(map[string]string{KeyLaborCostPerHour: "lots"})
	require.Error(t, err)
}

func TestServiceCalculateUsesStoredSettings(t *testing.T) {
	svc, _, _ := newFixture()
	b, err := svc.CalculateProductionCost(context.Background(), 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 60.95, b.TotalCost, 1e-9)

	_, err = svc.CalculateProductionCost(context.Background(), 99, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.CalculateProductionCost(context.Background(), 1, 0)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUpdateProductCostRecomputesMargin(t *testing.T) {
	svc, cat, _ := newFixture()
	update, err := svc.UpdateProductCost(context.Background(), 1)
	require.NoError(t, err)
	require.InDelta(t, 60.95, update.Cost, 1e-9)
	require.InDelta(t, 39.05, update.Margin, 1e-9)
	require.InDelta(t, 60.95, cat.products[1].Cost, 1e-9)
	require.InDelta(t, 39.05, cat.products[1].Margin, 1e-9)
}

func TestRefreshAllAndSettingsUpdate(t *testing.T) {
	svc, cat, settings := newFixture()
	ctx := context.Background()

	_, err := svc.UpdateSettings(ctx, Settings{LaborCostPerHour: -1}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.UpdateSettings(ctx, Settings{LaborCostPerHour: 10, OverheadPercentage: 0, ProductionTimeHours: 1, LaborScalesWithQuantity: true}, 1)
	require.NoError(t, err)
	require.Equal(t, "10", settings[KeyLaborCostPerHour])

	n, err := svc.RefreshAllProductCosts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.InDelta(t, 13.0, cat.products[1].Cost, 1e-9)
}

func TestRefreshAllSkipsFailingProduct(t *testing.T) {
	svc, cat, _ := newFixture()
	overflow := errors.New("numeric field overflow")
	cat.products[2] = catalog.Product{ID: 2, Name: "Crumb", Price: 0.1}
	cat.boms[2] = nil
	cat.products[3] = catalog.Product{ID: 3, Name: "Scone", Price: 200}
	cat.boms[3] = scenarioBOM()
	cat.failUpdate = map[int64]error{2: overflow}

	n, err := svc.RefreshAllProductCosts(context.Background())
	require.ErrorIs(t, err, overflow)
	require.Equal(t, 2, n)
	require.InDelta(t, 60.95, cat.products[1].Cost, 1e-9)
	require.InDelta(t, 60.95, cat.products[3].Cost, 1e-9)
	require.Zero(t, cat.products[2].Cost)
}

func TestUpdateProductCostClampsMargin(t *testing.T) {
	svc, cat, _ := newFixture()
	cat.products[4] = catalog.Product{ID: 4, Name: "Sample", Price: 0.0001}
	cat.boms[4] = scenarioBOM()

	update, err := svc.UpdateProductCost(context.Background(), 4)
	require.NoError(t, err)
	require.InDelta(t, float64(catalog.MinMargin), update.Margin, 1e-9)
}

func TestHandlerCostCalculation(t *testing.T) {
	svc, _, _ := newFixture()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, httpx.NewValidator(), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := &shared.Session{}
			sess.SetUser(1, rbac.RoleAdmin)
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/api/products", h.MountProductRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/1/cost-calculation?quantity=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var b Breakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	require.InDelta(t, 6.0, b.MaterialCost, 1e-9)
	require.InDelta(t, 100.0, b.LaborCost, 1e-9)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/1/cost-calculation?quantity=0", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	for _, q := range []string{"NaN", "Inf", "-Inf"} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/1/cost-calculation?quantity="+q, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/products/1/update-cost", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":true`)
}
