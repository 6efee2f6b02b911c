package reports

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ovenly/ovenly/internal/inventory"
)

// RepositoryPort lists the aggregate reads reports depend on.
type RepositoryPort interface {
	SalesTotal(ctx context.Context, from, to time.Time) (float64, error)
	CountActiveProducts(ctx context.Context) (int, error)
	CountLowStock(ctx context.Context) (int, error)
	CountPendingProductions(ctx context.Context) (int, error)
	InventoryValue(ctx context.Context) (float64, error)
	OutstandingBalance(ctx context.Context, kind string) (float64, error)
	DailySales(ctx context.Context, from, to time.Time) ([]DailyTotal, error)
}

// LowStockSource provides the inventory low-stock read.
type LowStockSource interface {
	LowStockItems(ctx context.Context) ([]inventory.LowStockItem, error)
}

// Service answers dashboard and trend queries through the cache.
type Service struct {
	repo     RepositoryPort
	lowStock LowStockSource
	cache    *Cache
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a repository with a cache helper. now may be nil.
func NewService(repo RepositoryPort, lowStock LowStockSource, cache *Cache, logger *slog.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, lowStock: lowStock, cache: cache, logger: logger, now: now}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Dashboard returns headline figures, running the underlying queries concurrently.
func (s *Service) Dashboard(ctx context.Context) (DashboardStats, error) {
	today := startOfDay(s.now())
	key, err := s.cache.BuildKey(ctx, "dashboard", today.Format(time.DateOnly))
	if err != nil {
		return DashboardStats{}, err
	}
	var stats DashboardStats
	err = s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (any, error) {
		return s.loadDashboard(ctx, today)
	})
	return stats, err
}

func (s *Service) loadDashboard(ctx context.Context, today time.Time) (DashboardStats, error) {
	tomorrow := today.AddDate(0, 0, 1)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	stats := DashboardStats{GeneratedAt: s.now().UTC()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TodaySales, err = s.repo.SalesTotal(ctx, today, tomorrow)
		return err
	})
	g.Go(func() (err error) {
		stats.MonthSales, err = s.repo.SalesTotal(ctx, monthStart, tomorrow)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalProducts, err = s.repo.CountActiveProducts(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.LowStockCount, err = s.repo.CountLowStock(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.PendingProductions, err = s.repo.CountPendingProductions(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.InventoryValue, err = s.repo.InventoryValue(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.ReceivablesTotal, err = s.repo.OutstandingBalance(ctx, "customer")
		return err
	})
	g.Go(func() (err error) {
		stats.PayablesTotal, err = s.repo.OutstandingBalance(ctx, "supplier")
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("dashboard stats", slog.Any("error", err))
		return DashboardStats{}, err
	}
	return stats, nil
}

// SalesTrend returns one point per day for the last days days, today
// included. Zero means the default window of 30 days.
func (s *Service) SalesTrend(ctx context.Context, days int) ([]TrendPoint, error) {
	if days == 0 {
		days = defaultTrendDays
	}
	if days < 1 || days > maxTrendDays {
		return nil, ErrInvalidDays
	}
	today := startOfDay(s.now())
	from := today.AddDate(0, 0, -(days - 1))
	key, err := s.cache.BuildKey(ctx, "sales_trend", today.Format(time.DateOnly), strconv.Itoa(days))
	if err != nil {
		return nil, err
	}
	var points []TrendPoint
	err = s.cache.FetchJSON(ctx, key, &points, func(ctx context.Context) (any, error) {
		totals, err := s.repo.DailySales(ctx, from, today.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		return FillTrend(from, days, totals), nil
	})
	return points, err
}

// LowStock returns items at or below their minimum level.
func (s *Service) LowStock(ctx context.Context) ([]inventory.LowStockItem, error) {
	key, err := s.cache.BuildKey(ctx, "low_stock")
	if err != nil {
		return nil, err
	}
	var items []inventory.LowStockItem
	err = s.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (any, error) {
		return s.lowStock.LowStockItems(ctx)
	})
	return items, err
}
