package sales_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/accounts/accountstest"
	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/sales"
	"github.com/ovenly/ovenly/internal/shared"
)

type memoryStore struct {
	*accountstest.Store

	txMu   sync.Mutex
	mu     sync.Mutex
	prices map[int64]float64
	sales  []sales.Sale
}

func newMemoryStore() *memoryStore {
	return &memoryStore{Store: accountstest.NewStore(), prices: map[int64]float64{1: 4.5, 2: 12}}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	saved := append([]sales.Sale(nil), m.sales...)
	m.mu.Unlock()
	restore := m.Store.Snapshot()
	if err := fn(ctx, m); err != nil {
		restore()
		m.mu.Lock()
		m.sales = saved
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryStore) ProductPrice(_ context.Context, id int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[id]
	if !ok {
		return 0, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *memoryStore) InsertSale(ctx context.Context, s sales.Sale) (sales.Sale, error) {
	if s.CustomerID != nil {
		if _, err := m.Store.GetParty(ctx, *s.CustomerID); err != nil {
			return sales.Sale{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.sales) + 1)
	s.CreatedAt = time.Now().UTC()
	m.sales = append(m.sales, s)
	return s, nil
}

func (m *memoryStore) InsertSaleItem(_ context.Context, it sales.Item) (sales.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prices[it.ProductID]; !ok {
		return sales.Item{}, catalog.ErrProductNotFound
	}
	s := &m.sales[it.SaleID-1]
	it.ID = int64(len(s.Items) + 1)
	s.Items = append(s.Items, it)
	return it, nil
}

func (m *memoryStore) GetSale(_ context.Context, id int64) (sales.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id <= 0 || int(id) > len(m.sales) {
		return sales.Sale{}, sales.ErrSaleNotFound
	}
	return m.sales[id-1], nil
}

func (m *memoryStore) ListSales(_ context.Context, filter sales.ListFilter) ([]sales.Sale, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sales.Sale, 0)
	for i := len(m.sales) - 1; i >= 0; i-- {
		s := m.sales[i]
		if filter.CustomerID != 0 && (s.CustomerID == nil || *s.CustomerID != filter.CustomerID) {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sales)
}

func newService(store *memoryStore) *sales.Service {
	return sales.NewService(store, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func price(v float64) *float64 { return &v }

func TestRecordSaleTotalsAndSpend(t *testing.T) {
	store := newMemoryStore()
	customer := store.Seed(accounts.Party{Kind: accounts.KindCustomer, Name: "Cafe Rosa"})
	svc := newService(store)
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, sales.RecordInput{
		CustomerID:    &customer.ID,
		PaymentMethod: "card",
		Items: []sales.LineInput{
			{ProductID: 1, Quantity: 3},
			{ProductID: 2, Quantity: 1, UnitPrice: price(10)},
		},
	})
	require.NoError(t, err)
	require.InDelta(t, 23.5, sale.TotalAmount, 1e-9)
	require.Len(t, sale.Items, 2)
	require.InDelta(t, 4.5, sale.Items[0].UnitPrice, 1e-9)
	require.InDelta(t, 13.5, sale.Items[0].Total, 1e-9)

	p := store.Party(customer.ID)
	require.InDelta(t, 23.5, p.TotalSpent, 1e-9)
	require.InDelta(t, 0.0, p.Balance, 1e-9)

	_, err = svc.RecordSale(ctx, sales.RecordInput{
		CustomerID:    &customer.ID,
		PaymentMethod: sales.PaymentCredit,
		Items:         []sales.LineInput{{ProductID: 2, Quantity: 2}},
	})
	require.NoError(t, err)
	p = store.Party(customer.ID)
	require.InDelta(t, 47.5, p.TotalSpent, 1e-9)
	require.InDelta(t, 24.0, p.Balance, 1e-9)
	balance, spent := store.LedgerSums(customer.ID)
	require.InDelta(t, balance, p.Balance, 1e-9)
	require.InDelta(t, spent, p.TotalSpent, 1e-9)

	anon, err := svc.RecordSale(ctx, sales.RecordInput{Items: []sales.LineInput{{ProductID: 1, Quantity: 1}}})
	require.NoError(t, err)
	require.Equal(t, sales.PaymentCash, anon.PaymentMethod)
	require.Nil(t, anon.CustomerID)
}

func TestRecordSaleRejects(t *testing.T) {
	store := newMemoryStore()
	supplier := store.Seed(accounts.Party{Kind: accounts.KindSupplier, Name: "Mill Co"})
	svc := newService(store)
	ctx := context.Background()
	line := []sales.LineInput{{ProductID: 1, Quantity: 1}}

	_, err := svc.RecordSale(ctx, sales.RecordInput{PaymentMethod: sales.PaymentCredit, Items: line})
	require.ErrorIs(t, err, sales.ErrCreditNeedsCustomer)
	_, err = svc.RecordSale(ctx, sales.RecordInput{PaymentMethod: "barter", Items: line})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = svc.RecordSale(ctx, sales.RecordInput{})
	require.ErrorIs(t, err, sales.ErrNoLines)
	_, err = svc.RecordSale(ctx, sales.RecordInput{Items: []sales.LineInput{{ProductID: 1, Quantity: -1}}})
	require.ErrorIs(t, err, sales.ErrInvalidLine)
	_, err = svc.RecordSale(ctx, sales.RecordInput{Items: []sales.LineInput{{ProductID: 1, Quantity: 1}, {ProductID: 9, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.RecordSale(ctx, sales.RecordInput{CustomerID: &supplier.ID, Items: line})
	require.ErrorIs(t, err, accounts.ErrWrongPartyKind)

	require.Zero(t, store.count())
	require.Empty(t, store.Entries(supplier.ID))
}

func TestHandlerRecordSale(t *testing.T) {
	store := newMemoryStore()
	svc := newService(store)
	handler := sales.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, httpx.NewValidator(), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &shared.Session{}
			sess.SetUser(5, rbac.RoleAdmin)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	r.Route("/api/sales", handler.MountRoutes)

	body, _ := json.Marshal(map[string]any{"items": []map[string]any{{"productId": 1, "quantity": 2}}})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sales", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var sale sales.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.InDelta(t, 9.0, sale.TotalAmount, 1e-9)
	require.Equal(t, int64(5), sale.CreatedBy)

	body, _ = json.Marshal(map[string]any{"paymentMethod": "credit", "items": []map[string]any{{"productId": 1, "quantity": 2}}})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sales", bytes.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sales/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sales/2", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
