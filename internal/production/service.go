package production

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/shared"
)

// RepositoryPort abstracts schedule persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateSchedule(ctx context.Context, in CreateInput) (ScheduleItem, error)
	GetSchedule(ctx context.Context, id int64) (ScheduleItem, error)
	ListSchedules(ctx context.Context, filter ListFilter) ([]ScheduleItem, int, error)
	Ingredients(ctx context.Context, productID int64) ([]catalog.Ingredient, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Observer receives processing outcomes.
type Observer interface {
	ObserveProduction(outcome string)
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Locker   Locker
	Audit    shared.AuditRecorder
	Notifier shared.ChangeNotifier
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service schedules and processes production runs.
type Service struct {
	repo     RepositoryPort
	ledger   *inventory.Ledger
	locker   Locker
	audit    shared.AuditRecorder
	notifier shared.ChangeNotifier
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *inventory.Ledger, deps ServiceDeps) *Service {
	if ledger == nil {
		ledger = inventory.NewLedger(false)
	}
	if deps.Notifier == nil {
		deps.Notifier = shared.NopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		locker:   deps.Locker,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		observer: deps.Observer,
		logger:   deps.Logger,
		now:      deps.Now,
	}
}

// CreateSchedule plans a run and reports whether current stock covers it.
func (s *Service) CreateSchedule(ctx context.Context, in CreateInput) (Planned, error) {
	if in.ProductID <= 0 {
		return Planned{}, fmt.Errorf("%w: production: product required", shared.ErrInvalidInput)
	}
	if in.Quantity <= 0 {
		return Planned{}, ErrInvalidQuantity
	}
	if in.ScheduledDate.IsZero() {
		in.ScheduledDate = s.now()
	}
	y, m, d := in.ScheduledDate.Date()
	in.ScheduledDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	in.Notes = strings.TrimSpace(in.Notes)

	item, err := s.repo.CreateSchedule(ctx, in)
	if err != nil {
		return Planned{}, err
	}
	bom, err := s.repo.Ingredients(ctx, item.ProductID)
	if err != nil {
		return Planned{}, err
	}
	reqs, ok := Requirements(bom, item.Quantity)
	if !ok {
		s.logger.Warn("production scheduled with insufficient stock",
			slog.Int64("schedule_id", item.ID),
			slog.Int64("product_id", item.ProductID),
			slog.Float64("quantity", item.Quantity))
	}
	s.recordAudit(ctx, in.ActorID, "production:schedule", item.ID, map[string]any{"product_id": item.ProductID, "quantity": item.Quantity})
	s.bump(ctx)
	return Planned{ScheduleItem: item, IngredientRequirements: reqs, Sufficient: ok}, nil
}

// ProcessProduction completes a run: every ingredient of the product is
// drawn from stock scaled by actualQuantity and the entry is marked
// completed, all in one transaction. A completed entry is never processed
// again.
func (s *Service) ProcessProduction(ctx context.Context, id int64, actualQuantity float64, actorID int64) (ProcessResult, error) {
	if actualQuantity <= 0 {
		return ProcessResult{}, ErrInvalidQuantity
	}
	var result ProcessResult
	run := func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			sched, err := tx.GetScheduleForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if sched.Status == StatusCompleted {
				return ErrAlreadyCompleted
			}
			bom, err := tx.Ingredients(ctx, sched.ProductID)
			if err != nil {
				return err
			}
			consumed := make([]Consumption, 0, len(bom))
			for _, ing := range bom {
				qty := scaled(ing.Quantity, actualQuantity)
				if qty <= 0 {
					continue
				}
				row, err := s.ledger.Post(ctx, tx, inventory.Movement{
					ItemID:    ing.InventoryItemID,
					Type:      inventory.TransactionTypeOut,
					Quantity:  qty,
					Reason:    fmt.Sprintf("Production #%d", id),
					Reference: sched.ProductName,
					ActorID:   actorID,
				})
				if err != nil {
					return fmt.Errorf("production: draw %s: %w", ing.ItemName, err)
				}
				after, err := tx.GetItemForUpdate(ctx, ing.InventoryItemID)
				if err != nil {
					return err
				}
				consumed = append(consumed, Consumption{
					ItemID:        ing.InventoryItemID,
					Name:          ing.ItemName,
					Quantity:      qty,
					StockAfter:    after.CurrentStock,
					TransactionID: row.ID,
				})
			}
			done, err := tx.Complete(ctx, id, actualQuantity, s.now().UTC())
			if err != nil {
				return err
			}
			result = ProcessResult{Schedule: done, Consumed: consumed}
			return nil
		})
	}

	var err error
	if s.locker == nil {
		err = run(ctx)
	} else {
		err = s.locker.WithLock(ctx, shared.ProductionLockKey(id), run)
	}
	if err != nil {
		s.observe("rejected")
		return ProcessResult{}, err
	}

	s.observe("completed")
	s.logger.Info("production processed",
		slog.Int64("schedule_id", id),
		slog.Float64("actual_quantity", actualQuantity),
		slog.Int("ingredients", len(result.Consumed)))
	s.recordAudit(ctx, actorID, "production:process", id, map[string]any{"actual_quantity": actualQuantity})
	s.bump(ctx)
	return result, nil
}

// UpdateStatus changes a schedule status. Completion goes through
// ProcessProduction only.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) (ScheduleItem, error) {
	if !status.Valid() || status == StatusCompleted {
		return ScheduleItem{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var out ScheduleItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sched, err := tx.GetScheduleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sched.Status == StatusCompleted {
			return ErrAlreadyCompleted
		}
		out, err = tx.SetStatus(ctx, id, status)
		return err
	})
	if err != nil {
		return ScheduleItem{}, err
	}
	s.recordAudit(ctx, actorID, "production:status", id, map[string]any{"status": string(status)})
	s.bump(ctx)
	return out, nil
}

// Get fetches a schedule entry with its current ingredient requirements.
func (s *Service) Get(ctx context.Context, id int64) (Planned, error) {
	item, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return Planned{}, err
	}
	qty := item.Quantity
	if item.ActualQuantity != nil {
		qty = *item.ActualQuantity
	}
	bom, err := s.repo.Ingredients(ctx, item.ProductID)
	if err != nil {
		return Planned{}, err
	}
	reqs, ok := Requirements(bom, qty)
	return Planned{ScheduleItem: item, IngredientRequirements: reqs, Sufficient: ok}, nil
}

// List returns schedule entries in date order.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]ScheduleItem, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: production: unknown status %q", shared.ErrInvalidInput, filter.Status)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: production: to before from", shared.ErrInvalidInput)
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	items, total, err := s.repo.ListSchedules(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveProduction(outcome)
	}
}

func (s *Service) bump(ctx context.Context) {
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("production cache bump", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production_schedule",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("production audit", slog.Any("error", err))
	}
}
