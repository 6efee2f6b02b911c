package purchasing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/shared"
)

// IdempotencyHeader carries the client-chosen retry key.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for purchases.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs purchasing handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermPurchasesView, rbac.PermPurchasesEdit))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermPurchasesEdit))
		r.Post("/", h.create(false))
		r.Post("/with-stock-sync", h.create(true))
		r.Put("/{id}/status", h.updateStatus)
	})
}

type createRequest struct {
	SupplierName  string      `json:"supplierName" validate:"required,max=200"`
	PartyID       *int64      `json:"partyId,omitempty" validate:"omitempty,gt=0"`
	PaymentMethod string      `json:"paymentMethod" validate:"max=50"`
	Notes         string      `json:"notes" validate:"max=1000"`
	Items         []LineInput `json:"items" validate:"required,min=1,dive"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending received paid cancelled"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageRequest(r)
	filter := ListFilter{Status: Status(r.URL.Query().Get("status")), Page: page, PerPage: perPage}
	if raw := r.URL.Query().Get("party_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "party_id must be numeric")
			return
		}
		filter.PartyID = id
	}
	items, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Purchase]{Items: items, Pagination: pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(syncStock bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if !httpx.Bind(w, r, h.validate, &req) {
			return
		}
		in := CreateInput{
			SupplierName:   req.SupplierName,
			PartyID:        req.PartyID,
			PaymentMethod:  req.PaymentMethod,
			Notes:          req.Notes,
			Items:          req.Items,
			IdempotencyKey: r.Header.Get(IdempotencyHeader),
			ActorID:        shared.ActorFromContext(r.Context()),
		}
		var (
			p   Purchase
			err error
		)
		if syncStock {
			p, err = h.service.CreatePurchaseWithStockSync(r.Context(), in)
		} else {
			p, err = h.service.CreatePurchase(r.Context(), in)
		}
		if err != nil {
			h.logger.Error("create purchase", slog.Any("error", err), slog.Bool("stock_sync", syncStock))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, p)
	}
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	p, err := h.service.UpdateStatus(r.Context(), id, Status(req.Status), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
