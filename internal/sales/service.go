package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ovenly/ovenly/internal/accounts"
	"github.com/ovenly/ovenly/internal/shared"
)

// RepositoryPort abstracts sale persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// Service records sales and customer spend.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	notifier shared.ChangeNotifier
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, notifier shared.ChangeNotifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger}
}

// RecordSale stores a sale. A sale to a customer adds to their total spent;
// a credit sale also raises their balance.
func (s *Service) RecordSale(ctx context.Context, in RecordInput) (Sale, error) {
	in.PaymentMethod = PaymentMethod(strings.ToLower(strings.TrimSpace(string(in.PaymentMethod))))
	if in.PaymentMethod == "" {
		in.PaymentMethod = PaymentCash
	}
	if !in.PaymentMethod.Valid() {
		return Sale{}, ErrInvalidPayment
	}
	if in.CustomerID != nil && *in.CustomerID <= 0 {
		in.CustomerID = nil
	}
	if in.PaymentMethod == PaymentCredit && in.CustomerID == nil {
		return Sale{}, ErrCreditNeedsCustomer
	}
	if len(in.Items) == 0 {
		return Sale{}, ErrNoLines
	}
	for _, line := range in.Items {
		if line.ProductID <= 0 || line.Quantity <= 0 || (line.UnitPrice != nil && *line.UnitPrice < 0) {
			return Sale{}, ErrInvalidLine
		}
	}

	sale := Sale{
		Number:        "SO-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]),
		CustomerID:    in.CustomerID,
		PaymentMethod: in.PaymentMethod,
		CreatedBy:     in.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines := make([]Item, 0, len(in.Items))
		total := decimal.Zero
		for _, l := range in.Items {
			var price float64
			if l.UnitPrice != nil {
				price = *l.UnitPrice
			} else {
				p, err := tx.ProductPrice(ctx, l.ProductID)
				if err != nil {
					return err
				}
				price = p
			}
			lineTotal := decimal.NewFromFloat(l.Quantity).Mul(decimal.NewFromFloat(price)).Round(4)
			total = total.Add(lineTotal)
			lines = append(lines, Item{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: price, Total: lineTotal.InexactFloat64()})
		}
		sale.TotalAmount = total.InexactFloat64()

		var err error
		sale, err = tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.Items = make([]Item, 0, len(lines))
		for _, line := range lines {
			line.SaleID = sale.ID
			line, err = tx.InsertSaleItem(ctx, line)
			if err != nil {
				return err
			}
			sale.Items = append(sale.Items, line)
		}

		if sale.CustomerID == nil {
			return nil
		}
		posting := accounts.Posting{
			PartyID:   *sale.CustomerID,
			Kind:      accounts.EntrySale,
			Spent:     sale.TotalAmount,
			Reference: fmt.Sprintf("Sale #%d", sale.ID),
			Expect:    accounts.KindCustomer,
		}
		if sale.PaymentMethod == PaymentCredit {
			posting.Amount = sale.TotalAmount
		}
		_, _, err = accounts.Post(ctx, tx, posting)
		return err
	})
	if err != nil {
		return Sale{}, err
	}

	s.logger.Info("sale recorded",
		slog.Int64("sale_id", sale.ID),
		slog.String("payment_method", string(sale.PaymentMethod)),
		slog.Float64("total", sale.TotalAmount))
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "sale:create",
			Entity:   "sale",
			EntityID: strconv.FormatInt(sale.ID, 10),
			Meta:     map[string]any{"number": sale.Number, "total": sale.TotalAmount},
		}); err != nil {
			s.logger.Warn("sales audit", slog.Any("error", err))
		}
	}
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("sales cache bump", slog.Any("error", err))
	}
	return sale, nil
}

// Get fetches a sale with lines.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// List returns a page of sales.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: sales: to before from", shared.ErrInvalidInput)
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	items, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}
