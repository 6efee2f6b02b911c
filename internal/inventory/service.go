package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ovenly/ovenly/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItems(ctx context.Context, filter ListFilter) ([]Item, int, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	UpdateItem(ctx context.Context, id int64, in ItemInput) (Item, error)
	DeleteItem(ctx context.Context, id int64) error
	LowStockItems(ctx context.Context) ([]LowStockItem, error)
	History(ctx context.Context, itemID int64, limit int) ([]Transaction, error)
	StockDrift(ctx context.Context) ([]Drift, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// CostRefresher schedules a product cost refresh after ingredient prices move.
type CostRefresher interface {
	EnqueueCostRefresh(ctx context.Context) error
}

// Service coordinates inventory operations.
type Service struct {
	repo      RepositoryPort
	ledger    *Ledger
	locker    Locker
	audit     shared.AuditRecorder
	notifier  shared.ChangeNotifier
	refresher CostRefresher
	logger    *slog.Logger
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Locker    Locker
	Audit     shared.AuditRecorder
	Notifier  shared.ChangeNotifier
	Refresher CostRefresher
	Logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, deps ServiceDeps) *Service {
	if ledger == nil {
		ledger = NewLedger(false)
	}
	if deps.Notifier == nil {
		deps.Notifier = shared.NopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, locker: deps.Locker, audit: deps.Audit, notifier: deps.Notifier, refresher: deps.Refresher, logger: deps.Logger}
}

// Ledger exposes the posting policy shared with other modules.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// TransactionInput is a manual ledger posting.
type TransactionInput struct {
	ItemID    int64
	Type      TransactionType
	Quantity  float64
	Reason    string
	Reference string
	// UnitCost, when set on an "in" movement, re-prices the item by weighted average.
	UnitCost *float64
	ActorID  int64
}

// PostTransaction records a manual movement.
func (s *Service) PostTransaction(ctx context.Context, input TransactionInput) (Transaction, error) {
	if input.ItemID == 0 {
		return Transaction{}, fmt.Errorf("%w: inventory: item required", shared.ErrInvalidInput)
	}
	m := Movement{
		ItemID:    input.ItemID,
		Type:      input.Type,
		Quantity:  input.Quantity,
		Reason:    strings.TrimSpace(input.Reason),
		Reference: strings.TrimSpace(input.Reference),
		ActorID:   input.ActorID,
	}
	if err := validateMovement(m); err != nil {
		return Transaction{}, err
	}
	if input.UnitCost != nil && input.Type != TransactionTypeIn {
		return Transaction{}, fmt.Errorf("%w: inventory: unit cost only applies to in movements", shared.ErrInvalidInput)
	}

	var row Transaction
	err := s.withItemLock(ctx, input.ItemID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if input.UnitCost != nil {
				res, err := s.ledger.Receive(ctx, tx, Receipt{
					ItemID:    m.ItemID,
					Quantity:  m.Quantity,
					UnitPrice: *input.UnitCost,
					Reason:    m.Reason,
					Reference: m.Reference,
					ActorID:   m.ActorID,
				})
				row = res.Transaction
				return err
			}
			var err error
			row, err = s.ledger.Post(ctx, tx, m)
			return err
		})
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, input.ActorID, "inventory:"+string(row.Type), strconv.FormatInt(row.ItemID, 10), map[string]any{
		"quantity":  row.Quantity,
		"reason":    row.Reason,
		"reference": row.Reference,
	})
	s.bump(ctx)
	if input.UnitCost != nil && s.refresher != nil {
		if err := s.refresher.EnqueueCostRefresh(ctx); err != nil {
			s.logger.Warn("enqueue cost refresh", slog.Any("error", err))
		}
	}
	return row, nil
}

// CreateItem inserts an item, booking any opening stock through the ledger.
func (s *Service) CreateItem(ctx context.Context, in ItemInput, actorID int64) (Item, error) {
	in = normalizeItemInput(in)
	if err := validateItemInput(in); err != nil {
		return Item{}, err
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.InsertItem(ctx, in)
		if err != nil {
			return err
		}
		if in.OpeningStock <= 0 {
			return nil
		}
		if _, err := s.ledger.Post(ctx, tx, Movement{
			ItemID:   item.ID,
			Type:     TransactionTypeIn,
			Quantity: in.OpeningStock,
			Reason:   "Opening stock",
			ActorID:  actorID,
		}); err != nil {
			return err
		}
		item, err = tx.GetItemForUpdate(ctx, item.ID)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, actorID, "inventory:create", strconv.FormatInt(item.ID, 10), map[string]any{"name": item.Name})
	s.bump(ctx)
	return item, nil
}

// UpdateItem edits descriptive fields. Stock and cost are left untouched.
func (s *Service) UpdateItem(ctx context.Context, id int64, in ItemInput, actorID int64) (Item, error) {
	in = normalizeItemInput(in)
	if err := validateItemInput(in); err != nil {
		return Item{}, err
	}
	item, err := s.repo.UpdateItem(ctx, id, in)
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, actorID, "inventory:update", strconv.FormatInt(id, 10), map[string]any{"name": item.Name, "min_level": item.MinLevel})
	s.bump(ctx)
	return item, nil
}

// GetItem fetches one item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns a page of items.
func (s *Service) ListItems(ctx context.Context, filter ListFilter) ([]Item, shared.Pagination, error) {
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	items, total, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// DeleteItem removes an unreferenced item.
func (s *Service) DeleteItem(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory:delete", strconv.FormatInt(id, 10), nil)
	s.bump(ctx)
	return nil
}

// LowStockItems lists items at or below their minimum level.
func (s *Service) LowStockItems(ctx context.Context) ([]LowStockItem, error) {
	return s.repo.LowStockItems(ctx)
}

const defaultHistoryLimit = 100

// History returns ledger rows for an item, newest first. The limit is capped
// at shared.MaxListLimit.
func (s *Service) History(ctx context.Context, itemID int64, limit int) ([]Transaction, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, itemID, shared.ClampLimit(limit, defaultHistoryLimit))
}

// Reconcile reports items whose stored stock differs from the ledger sum.
// With fix set, each drifted item is rewritten to its ledger total under a row lock.
func (s *Service) Reconcile(ctx context.Context, fix bool) ([]Drift, error) {
	drifts, err := s.repo.StockDrift(ctx)
	if err != nil {
		return nil, err
	}
	if !fix || len(drifts) == 0 {
		return drifts, nil
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, d := range drifts {
			item, err := tx.GetItemForUpdate(ctx, d.ItemID)
			if err != nil {
				return err
			}
			sum, err := tx.SumLedger(ctx, d.ItemID)
			if err != nil {
				return err
			}
			if delta := sum - item.CurrentStock; delta != 0 {
				if _, err := tx.ApplyStockDelta(ctx, d.ItemID, delta); err != nil {
					return err
				}
			}
			s.logger.Warn("inventory stock reconciled",
				slog.Int64("item_id", d.ItemID),
				slog.Float64("stored", item.CurrentStock),
				slog.Float64("ledger", sum))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bump(ctx)
	return drifts, nil
}

func (s *Service) withItemLock(ctx context.Context, itemID int64, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, shared.InventoryItemLockKey(itemID), fn)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "inventory_item", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("inventory audit", slog.Any("error", err), slog.String("action", action))
	}
}

func (s *Service) bump(ctx context.Context) {
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("inventory cache bump", slog.Any("error", err))
	}
}

func normalizeItemInput(in ItemInput) ItemInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Supplier = strings.TrimSpace(in.Supplier)
	return in
}

func validateItemInput(in ItemInput) error {
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: inventory: name required", shared.ErrInvalidInput)
	case in.Unit == "":
		return fmt.Errorf("%w: inventory: unit required", shared.ErrInvalidInput)
	case in.MinLevel < 0:
		return fmt.Errorf("%w: inventory: min level must be >= 0", shared.ErrInvalidInput)
	case in.CostPerUnit < 0:
		return ErrInvalidUnitCost
	case in.OpeningStock < 0:
		return ErrInvalidQuantity
	}
	return nil
}
