package costing

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/shared"
)

// Handler exposes cost calculation and costing settings.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs costing handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

// MountProductRoutes registers per-product costing routes under /products.
func (h *Handler) MountProductRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermProductsView, rbac.PermProductsEdit)).Get("/{id}/cost-calculation", h.calculate)
	r.With(h.rbac.RequireAll(rbac.PermProductsEdit)).Put("/{id}/update-cost", h.updateCost)
}

// MountSettingsRoutes registers /settings/costing.
func (h *Handler) MountSettingsRoutes(r chi.Router) {
	r.Get("/", h.getSettings)
	r.With(h.rbac.RequireAll(rbac.PermSettingsEdit)).Put("/", h.putSettings)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quantity := 1.0
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		quantity, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid quantity %q", shared.ErrInvalidInput, raw))
			return
		}
	}
	breakdown, err := h.service.CalculateProductionCost(r.Context(), id, quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, breakdown)
}

func (h *Handler) updateCost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	update, err := h.service.UpdateProductCost(r.Context(), id)
	if err != nil {
		h.logger.Error("update product cost", slog.Any("error", err), slog.Int64("product_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Product cost updated",
		"cost":    update.Cost,
		"margin":  update.Margin,
	})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.logger.Error("load costing settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var req Settings
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	settings, err := h.service.UpdateSettings(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}
