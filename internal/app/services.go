package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/auth"
	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/costing"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/observability"
	"github.com/ovenly/ovenly/internal/production"
	"github.com/ovenly/ovenly/internal/purchasing"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/reports"
	"github.com/ovenly/ovenly/internal/sales"
	"github.com/ovenly/ovenly/internal/shared"
)

// Infra bundles the connections both binaries open at start-up.
type Infra struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	// Refresher queues product cost refreshes after stock receipts. Optional.
	Refresher inventory.CostRefresher
	Logger    *slog.Logger
}

// Services holds every domain service wired against shared infrastructure.
type Services struct {
	Inventory   *inventory.Service
	Catalog     *catalog.Service
	Costing     *costing.Service
	Purchasing  *purchasing.Service
	Production  *production.Service
	Accounts    *accounts.Service
	Sales       *sales.Service
	Reports     *reports.Service
	Auth        *auth.Service
	RBAC        *rbac.Service
	Idempotency *shared.IdempotencyStore
	ReportCache *reports.Cache
}

// NewServices wires the domain services. Every write path bumps the report
// cache version so dashboards never serve figures older than the last change.
func NewServices(cfg *Config, infra Infra) *Services {
	logger := infra.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := shared.NewAuditLogger(infra.Pool)
	idempotency := shared.NewIdempotencyStore(infra.Pool)
	locker := shared.NewLocker(infra.Redis, cfg.LockTTL)
	reportCache := reports.NewCache(infra.Redis, cfg.ReportCacheTTL)

	var ledgerOpts []inventory.LedgerOption
	if infra.Metrics != nil {
		ledgerOpts = append(ledgerOpts, inventory.WithObserver(infra.Metrics))
	}
	ledger := inventory.NewLedger(cfg.InventoryAllowNegative, ledgerOpts...)

	inventorySvc := inventory.NewService(inventory.NewRepository(infra.Pool), ledger, inventory.ServiceDeps{
		Locker:    locker,
		Audit:     audit,
		Notifier:  reportCache,
		Refresher: infra.Refresher,
		Logger:    logger.With(slog.String("module", "inventory")),
	})

	catalogRepo := catalog.NewRepository(infra.Pool)
	catalogSvc := catalog.NewService(catalogRepo, audit, reportCache, logger.With(slog.String("module", "catalog")))
	costingSvc := costing.NewService(catalogRepo, costing.NewSettingsRepository(infra.Pool), audit, reportCache, logger.With(slog.String("module", "costing")))

	purchasingSvc := purchasing.NewService(purchasing.NewRepository(infra.Pool), ledger, purchasing.ServiceDeps{
		Idempotency: idempotency,
		Locker:      locker,
		Audit:       audit,
		Notifier:    reportCache,
		Refresher:   infra.Refresher,
		Logger:      logger.With(slog.String("module", "purchasing")),
	})

	productionDeps := production.ServiceDeps{
		Locker:   locker,
		Audit:    audit,
		Notifier: reportCache,
		Logger:   logger.With(slog.String("module", "production")),
	}
	if infra.Metrics != nil {
		productionDeps.Observer = infra.Metrics
	}
	productionSvc := production.NewService(production.NewRepository(infra.Pool), ledger, productionDeps)

	accountsSvc := accounts.NewService(accounts.NewRepository(infra.Pool), audit, reportCache, logger.With(slog.String("module", "accounts")))
	salesSvc := sales.NewService(sales.NewRepository(infra.Pool), audit, reportCache, logger.With(slog.String("module", "sales")))
	reportsSvc := reports.NewService(reports.NewRepository(infra.Pool), inventorySvc, reportCache, logger.With(slog.String("module", "reports")), nil)

	return &Services{
		Inventory:   inventorySvc,
		Catalog:     catalogSvc,
		Costing:     costingSvc,
		Purchasing:  purchasingSvc,
		Production:  productionSvc,
		Accounts:    accountsSvc,
		Sales:       salesSvc,
		Reports:     reportsSvc,
		Auth:        auth.NewService(auth.NewRepository(infra.Pool)),
		RBAC:        rbac.NewService(rbac.NewRepository(infra.Pool)),
		Idempotency: idempotency,
		ReportCache: reportCache,
	}
}
