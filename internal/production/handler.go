package production

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ovenly/ovenly/internal/platform/httpx"
	"github.com/ovenly/ovenly/internal/rbac"
	"github.com/ovenly/ovenly/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for the production schedule.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs production handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

// MountRoutes registers schedule routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermProductionView, rbac.PermProductionEdit))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermProductionEdit))
		r.Post("/", h.create)
		r.Put("/{id}/status", h.updateStatus)
		r.Post("/{id}/process", h.process)
	})
}

type createRequest struct {
	ProductID     int64   `json:"productId" validate:"required,gt=0"`
	Quantity      float64 `json:"quantity" validate:"gt=0"`
	ScheduledDate string  `json:"scheduledDate" validate:"omitempty,datetime=2006-01-02"`
	Notes         string  `json:"notes" validate:"max=1000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled in_progress completed delayed"`
}

type processRequest struct {
	ActualQuantity float64 `json:"actualQuantity" validate:"gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageRequest(r)
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Page: page, PerPage: perPage}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
		return
	}
	items, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Page[ScheduleItem]{Items: items, Pagination: pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	planned, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, planned)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	date, _ := parseDate(req.ScheduledDate)
	planned, err := h.service.CreateSchedule(r.Context(), CreateInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		ScheduledDate: date,
		Notes:         req.Notes,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, planned)
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
	item, err := h.service.UpdateStatus(r.Context(), id, Status(req.Status), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req processRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	result, err := h.service.ProcessProduction(r.Context(), id, req.ActualQuantity, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("process production", slog.Any("error", err), slog.Int64("schedule_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("Production #%d processed", id),
		"schedule": result.Schedule,
		"consumed": result.Consumed,
	})
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, raw)
}
