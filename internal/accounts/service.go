package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ovenly/ovenly/internal/shared"
)

// RepositoryPort abstracts account persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateParty(ctx context.Context, in PartyInput) (Party, error)
	UpdateParty(ctx context.Context, id int64, in PartyInput) (Party, error)
	DeleteParty(ctx context.Context, id int64) error
	GetParty(ctx context.Context, id int64) (Party, error)
	ListParties(ctx context.Context, filter PartyFilter) ([]Party, int, error)
	Statement(ctx context.Context, partyID int64, limit int) ([]Entry, error)
	BalanceDrift(ctx context.Context) ([]Drift, error)
}

// Service coordinates customer and supplier ledgers.
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

// CreateParty registers a customer or supplier.
func (s *Service) CreateParty(ctx context.Context, in PartyInput) (Party, error) {
	in, err := normalizeParty(in)
	if err != nil {
		return Party{}, err
	}
	return s.repo.CreateParty(ctx, in)
}

// UpdateParty edits contact details.
func (s *Service) UpdateParty(ctx context.Context, id int64, in PartyInput) (Party, error) {
	in, err := normalizeParty(in)
	if err != nil {
		return Party{}, err
	}
	return s.repo.UpdateParty(ctx, id, in)
}

// DeleteParty removes a party without history.
func (s *Service) DeleteParty(ctx context.Context, id int64) error {
	return s.repo.DeleteParty(ctx, id)
}

// GetParty fetches one party.
func (s *Service) GetParty(ctx context.Context, id int64) (Party, error) {
	return s.repo.GetParty(ctx, id)
}

// ListParties returns a page of parties.
func (s *Service) ListParties(ctx context.Context, filter PartyFilter) ([]Party, shared.Pagination, error) {
	if filter.Kind != "" && filter.Kind != KindCustomer && filter.Kind != KindSupplier {
		return nil, shared.Pagination{}, fmt.Errorf("%w: accounts: unknown party kind %q", shared.ErrInvalidInput, filter.Kind)
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	items, total, err := s.repo.ListParties(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

const defaultStatementLimit = 200

// Statement returns the ledger entries of a party, at most shared.MaxListLimit.
func (s *Service) Statement(ctx context.Context, partyID int64, limit int) ([]Entry, error) {
	if _, err := s.repo.GetParty(ctx, partyID); err != nil {
		return nil, err
	}
	return s.repo.Statement(ctx, partyID, shared.ClampLimit(limit, defaultStatementLimit))
}

// UpdateCustomerAccount books a sale on account: balance and total spent grow by amount.
func (s *Service) UpdateCustomerAccount(ctx context.Context, customerID int64, amount float64, reference string, actorID int64) (Party, error) {
	if amount <= 0 {
		return Party{}, ErrInvalidAmount
	}
	return s.post(ctx, actorID, Posting{
		PartyID:   customerID,
		Kind:      EntrySale,
		Amount:    amount,
		Spent:     amount,
		Reference: strings.TrimSpace(reference),
		Expect:    KindCustomer,
	}, nil)
}

// RecordCustomerPayment reduces what a customer owes.
func (s *Service) RecordCustomerPayment(ctx context.Context, customerID int64, amount float64, method, reference string, actorID int64) (Party, error) {
	if amount <= 0 {
		return Party{}, ErrInvalidAmount
	}
	ref := strings.TrimSpace(reference)
	if method = strings.TrimSpace(method); method != "" {
		ref = strings.TrimSpace(method + " " + ref)
	}
	return s.post(ctx, actorID, Posting{
		PartyID:   customerID,
		Kind:      EntryPayment,
		Amount:    -amount,
		Reference: ref,
		Expect:    KindCustomer,
	}, nil)
}

// CreateSupplierPayment reduces what is owed to a supplier and records the cash outflow as an expense.
func (s *Service) CreateSupplierPayment(ctx context.Context, supplierID int64, amount float64, method, reference string, actorID int64) (Party, error) {
	if amount <= 0 {
		return Party{}, ErrInvalidAmount
	}
	ref := strings.TrimSpace(reference)
	method = strings.TrimSpace(method)
	return s.post(ctx, actorID, Posting{
		PartyID:   supplierID,
		Kind:      EntryPayment,
		Amount:    -amount,
		Reference: ref,
		Expect:    KindSupplier,
	}, &Expense{
		Category:    ExpenseSupplierPayment,
		Amount:      amount,
		Description: strings.TrimSpace("Payment to supplier " + ref),
		PartyID:     supplierID,
		Method:      method,
	})
}

func (s *Service) post(ctx context.Context, actorID int64, p Posting, expense *Expense) (Party, error) {
	var party Party
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		_, party, err = Post(ctx, tx, p)
		if err != nil {
			return err
		}
		if expense != nil {
			return tx.InsertExpense(ctx, *expense)
		}
		return nil
	})
	if err != nil {
		return Party{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "accounts:" + string(p.Kind),
			Entity:   "party",
			EntityID: strconv.FormatInt(p.PartyID, 10),
			Meta:     map[string]any{"amount": p.Amount, "spent": p.Spent, "reference": p.Reference},
		}); err != nil {
			s.logger.Warn("accounts audit", slog.Any("error", err))
		}
	}
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("accounts cache bump", slog.Any("error", err))
	}
	return party, nil
}

// Reconcile reports parties whose balance or total spent differs from their
// ledger. With fix set the projection is rewritten to the ledger sums.
func (s *Service) Reconcile(ctx context.Context, fix bool) ([]Drift, error) {
	drifts, err := s.repo.BalanceDrift(ctx)
	if err != nil {
		return nil, err
	}
	if !fix || len(drifts) == 0 {
		return drifts, nil
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, d := range drifts {
			party, err := tx.GetPartyForUpdate(ctx, d.PartyID)
			if err != nil {
				return err
			}
			balance, spent, err := tx.SumPartyLedger(ctx, d.PartyID)
			if err != nil {
				return err
			}
			if _, err := tx.ApplyBalanceDelta(ctx, d.PartyID, balance-party.Balance, spent-party.TotalSpent); err != nil {
				return err
			}
			s.logger.Warn("party balance reconciled",
				slog.Int64("party_id", d.PartyID),
				slog.Float64("stored_balance", party.Balance),
				slog.Float64("ledger_balance", balance))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

func normalizeParty(in PartyInput) (PartyInput, error) {
	in.Kind = strings.TrimSpace(strings.ToLower(in.Kind))
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)
	if in.Name == "" {
		return in, fmt.Errorf("%w: accounts: name required", shared.ErrInvalidInput)
	}
	if PartyKind(in.Kind) != KindCustomer && PartyKind(in.Kind) != KindSupplier {
		return in, fmt.Errorf("%w: accounts: kind must be customer or supplier", shared.ErrInvalidInput)
	}
	return in, nil
}
