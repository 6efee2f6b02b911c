package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/auth"
	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/costing"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/observability"
	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/production"
	"github.com/ovenly/ovenly/internal/purchasing"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/reports"
	"github.com/ovenly/ovenly/internal/sales"
	"github.com/ovenly/ovenly/internal/shared"
	"github.com/ovenly/ovenly/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Services       *Services
	RBACMiddleware rbac.Middleware
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	Validator      *validator.Validate
}

// NewRouter constructs the chi.Router with Ovenly defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validate := params.Validator
	if validate == nil {
		validate = httpx.NewValidator()
	}
	httpx.ExposeInternalErrors(!params.Config.IsProduction())

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	svc := params.Services
	mw := params.RBACMiddleware
	authHandler := auth.NewHandler(logger, svc.Auth, params.SessionManager, validate)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			authHandler.MountPublicRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireAuthenticated())
				authHandler.MountRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuthenticated())

			r.Route("/permissions", rbac.NewPermissionsHandler(logger, svc.RBAC, mw).MountRoutes)

			r.Route("/inventory", inventory.NewHandler(logger, svc.Inventory, validate, mw).MountRoutes)

			catalogHandler := catalog.NewHandler(logger, svc.Catalog, validate, mw)
			costingHandler := costing.NewHandler(logger, svc.Costing, validate, mw)
			r.Route("/products", func(r chi.Router) {
				catalogHandler.MountProductRoutes(r)
				costingHandler.MountProductRoutes(r)
			})
			r.Route("/categories", catalogHandler.MountCategoryRoutes)
			r.Route("/settings/costing", costingHandler.MountSettingsRoutes)

			r.Route("/purchases", purchasing.NewHandler(logger, svc.Purchasing, validate, mw).MountRoutes)
			r.Route("/production-schedule", production.NewHandler(logger, svc.Production, validate, mw).MountRoutes)

			accountsHandler := accounts.NewHandler(logger, svc.Accounts, validate, mw)
			r.Route("/parties", accountsHandler.MountPartyRoutes)
			r.Route("/customers", accountsHandler.MountCustomerRoutes)
			r.Route("/suppliers", accountsHandler.MountSupplierRoutes)

			r.Route("/sales", sales.NewHandler(logger, svc.Sales, validate, mw).MountRoutes)
			r.Route("/reports", reports.NewHandler(logger, svc.Reports, mw).MountRoutes)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
