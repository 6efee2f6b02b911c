package accounts

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

// Handler wires HTTP endpoints for parties and their ledgers.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs accounts handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

// MountPartyRoutes registers /parties routes.
func (h *Handler) MountPartyRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermAccountsView, rbac.PermAccountsEdit, rbac.PermSalesEdit))
		r.Get("/", h.listParties)
		r.Get("/{id}", h.getParty)
		r.Get("/{id}/statement", h.statement)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermAccountsEdit))
		r.Post("/", h.createParty)
		r.Put("/{id}", h.updateParty)
		r.Delete("/{id}", h.deleteParty)
	})
}

// MountCustomerRoutes registers /customers ledger routes.
func (h *Handler) MountCustomerRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAll(rbac.PermAccountsEdit))
	r.Post("/{id}/account", h.customerAccount)
	r.Post("/{id}/payments", h.customerPayment)
}

// MountSupplierRoutes registers /suppliers ledger routes.
func (h *Handler) MountSupplierRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAll(rbac.PermAccountsEdit))
	r.Post("/{id}/payments", h.supplierPayment)
}

type amountRequest struct {
	Amount    float64 `json:"amount" validate:"gt=0"`
	Method    string  `json:"method" validate:"max=50"`
	Reference string  `json:"reference" validate:"max=200"`
}

func (h *Handler) listParties(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageRequest(r)
	q := r.URL.Query()
	items, pagination, err := h.service.ListParties(r.Context(), PartyFilter{Kind: PartyKind(q.Get("kind")), Search: q.Get("q"), Page: page, PerPage: perPage})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Party]{Items: items, Pagination: pagination})
}

func (h *Handler) getParty(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.GetParty(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Statement(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) createParty(w http.ResponseWriter, r *http.Request) {
	var req PartyInput
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	p, err := h.service.CreateParty(r.Context(), req)
	if err != nil {
		h.logger.Error("create party", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updateParty(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PartyInput
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	p, err := h.service.UpdateParty(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deleteParty(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteParty(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) customerAccount(w http.ResponseWriter, r *http.Request) {
	h.handleAmount(w, r, func(id int64, req amountRequest, actor int64) (Party, error) {
		return h.service.UpdateCustomerAccount(r.Context(), id, req.Amount, req.Reference, actor)
	})
}

func (h *Handler) customerPayment(w http.ResponseWriter, r *http.Request) {
	h.handleAmount(w, r, func(id int64, req amountRequest, actor int64) (Party, error) {
		return h.service.RecordCustomerPayment(r.Context(), id, req.Amount, req.Method, req.Reference, actor)
	})
}

func (h *Handler) supplierPayment(w http.ResponseWriter, r *http.Request) {
	h.handleAmount(w, r, func(id int64, req amountRequest, actor int64) (Party, error) {
		return h.service.CreateSupplierPayment(r.Context(), id, req.Amount, req.Method, req.Reference, actor)
	})
}

func (h *Handler) handleAmount(w http.ResponseWriter, r *http.Request, fn func(id int64, req amountRequest, actor int64) (Party, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req amountRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	party, err := fn(id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("party ledger posting", slog.Any("error", err), slog.Int64("party_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "party": party})
}
