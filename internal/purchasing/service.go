package purchasing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/inventory"
	"github.com/ovenly/ovenly/internal/shared"
)

const idempotencyModule = "purchasing.stock_sync"

// RepositoryPort abstracts purchase persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error)
}

// IdempotencyPort records processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Idempotency IdempotencyPort
	Locker      Locker
	Audit       shared.AuditRecorder
	Notifier    shared.ChangeNotifier
	Refresher   inventory.CostRefresher
	Logger      *slog.Logger
}

// Service records purchases and synchronises stock.
type Service struct {
	repo        RepositoryPort
	ledger      *inventory.Ledger
	idempotency IdempotencyPort
	locker      Locker
	audit       shared.AuditRecorder
	notifier    shared.ChangeNotifier
	refresher   inventory.CostRefresher
	logger      *slog.Logger
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
	return &Service{
		repo:        repo,
		ledger:      ledger,
		idempotency: deps.Idempotency,
		locker:      deps.Locker,
		audit:       deps.Audit,
		notifier:    deps.Notifier,
		refresher:   deps.Refresher,
		logger:      deps.Logger,
	}
}

// CreatePurchase records a purchase without touching stock. Stock is
// received when the purchase is later marked received or paid.
func (s *Service) CreatePurchase(ctx context.Context, in CreateInput) (Purchase, error) {
	return s.create(ctx, in, false)
}

// CreatePurchaseWithStockSync records a purchase and, in the same
// transaction, receives every line into inventory at its unit price and
// accrues the supplier balance when a party is given.
func (s *Service) CreatePurchaseWithStockSync(ctx context.Context, in CreateInput) (Purchase, error) {
	return s.create(ctx, in, true)
}

func (s *Service) create(ctx context.Context, in CreateInput, syncStock bool) (Purchase, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return Purchase{}, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || s.idempotency == nil {
		return s.createTx(ctx, in, syncStock)
	}

	var out Purchase
	run := func(ctx context.Context) error {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ErrDuplicateRequest
			}
			return err
		}
		p, err := s.createTx(ctx, in, syncStock)
		if err != nil {
			if derr := s.idempotency.Delete(context.WithoutCancel(ctx), key); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr), slog.String("key", key))
			}
			return err
		}
		out = p
		return nil
	}
	if s.locker == nil {
		err = run(ctx)
	} else {
		err = s.locker.WithLock(ctx, shared.PurchaseLockKey(key), run)
	}
	return out, err
}

func (s *Service) createTx(ctx context.Context, in CreateInput, syncStock bool) (Purchase, error) {
	lines, total := priceLines(in.Items)
	purchase := Purchase{
		Number:        newNumber(),
		SupplierName:  in.SupplierName,
		PartyID:       in.PartyID,
		PaymentMethod: in.PaymentMethod,
		Status:        StatusPending,
		TotalAmount:   total,
		StockSynced:   syncStock,
		Notes:         in.Notes,
		CreatedBy:     in.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		purchase, err = tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.Items = make([]Item, 0, len(lines))
		for _, line := range lines {
			line.PurchaseID = purchase.ID
			line, err = tx.InsertPurchaseItem(ctx, line)
			if err != nil {
				return err
			}
			purchase.Items = append(purchase.Items, line)
		}
		if syncStock {
			if err := s.receive(ctx, tx, purchase); err != nil {
				return err
			}
		}
		if purchase.PartyID != nil {
			_, _, err := accounts.Post(ctx, tx, accounts.Posting{
				PartyID:   *purchase.PartyID,
				Kind:      accounts.EntryPurchase,
				Amount:    purchase.TotalAmount,
				Reference: reason(purchase.ID),
				Expect:    accounts.KindSupplier,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}

	s.logger.Info("purchase recorded",
		slog.Int64("purchase_id", purchase.ID),
		slog.String("number", purchase.Number),
		slog.Bool("stock_synced", syncStock),
		slog.Float64("total", purchase.TotalAmount))
	s.recordAudit(ctx, in.ActorID, "purchase:create", purchase.ID, map[string]any{
		"number":       purchase.Number,
		"total":        purchase.TotalAmount,
		"lines":        len(purchase.Items),
		"stock_synced": syncStock,
	})
	s.afterStockChange(ctx, syncStock)
	return purchase, nil
}

func (s *Service) receive(ctx context.Context, tx TxRepository, p Purchase) error {
	for _, line := range p.Items {
		_, err := s.ledger.Receive(ctx, tx, inventory.Receipt{
			ItemID:    line.InventoryItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Reason:    reason(p.ID),
			Reference: p.Number,
			ActorID:   p.CreatedBy,
		})
		if err != nil {
			return fmt.Errorf("purchasing: receive item %d: %w", line.InventoryItemID, err)
		}
	}
	return nil
}

// UpdateStatus moves a purchase along its lifecycle. Marking a purchase
// received that was created without stock sync receives its lines.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) (Purchase, error) {
	var (
		out      Purchase
		received bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(p.Status, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatus, p.Status, status)
		}
		if (status == StatusReceived || status == StatusPaid) && !p.StockSynced {
			if err := s.receive(ctx, tx, p); err != nil {
				return err
			}
			p.StockSynced = true
			received = true
		}
		if err := tx.SetStatus(ctx, id, status, p.StockSynced); err != nil {
			return err
		}
		p.Status = status
		out = p
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, actorID, "purchase:status", id, map[string]any{"status": string(status)})
	s.afterStockChange(ctx, received)
	return out, nil
}

// Get fetches a purchase with lines.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// List returns a page of purchases.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Purchase, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: purchasing: unknown status %q", shared.ErrInvalidInput, filter.Status)
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	items, total, err := s.repo.ListPurchases(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) afterStockChange(ctx context.Context, stockMoved bool) {
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("purchasing cache bump", slog.Any("error", err))
	}
	if !stockMoved || s.refresher == nil {
		return
	}
	if err := s.refresher.EnqueueCostRefresh(ctx); err != nil {
		s.logger.Warn("enqueue cost refresh", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("purchasing audit", slog.Any("error", err))
	}
}

func normalizeInput(in CreateInput) (CreateInput, error) {
	in.SupplierName = strings.TrimSpace(in.SupplierName)
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.SupplierName == "" {
		return in, fmt.Errorf("%w: purchasing: supplier name required", shared.ErrInvalidInput)
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = "cash"
	}
	if in.PartyID != nil && *in.PartyID <= 0 {
		in.PartyID = nil
	}
	if len(in.Items) == 0 {
		return in, ErrNoLines
	}
	for _, line := range in.Items {
		if line.InventoryItemID <= 0 || line.Quantity <= 0 || line.UnitPrice < 0 {
			return in, ErrInvalidLine
		}
	}
	return in, nil
}

// priceLines computes line totals and the purchase total as Σ quantity × unit price.
func priceLines(in []LineInput) ([]Item, float64) {
	lines := make([]Item, 0, len(in))
	total := decimal.Zero
	for _, l := range in {
		lineTotal := decimal.NewFromFloat(l.Quantity).Mul(decimal.NewFromFloat(l.UnitPrice)).Round(4)
		total = total.Add(lineTotal)
		lines = append(lines, Item{
			InventoryItemID: l.InventoryItemID,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			Total:           lineTotal.InexactFloat64(),
		})
	}
	return lines, total.InexactFloat64()
}

func reason(id int64) string {
	return fmt.Sprintf("Purchase #%d", id)
}

func newNumber() string {
	return "PO-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
