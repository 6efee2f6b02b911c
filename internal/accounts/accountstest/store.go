// Package accountstest provides an in-memory party ledger for tests.
package accountstest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ovenly/ovenly/internal/accounts"
)

// Store implements accounts.RepositoryPort and accounts.TxRepository in memory.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	parties  map[int64]accounts.Party
	entries  []accounts.Entry
	expenses []accounts.Expense
	nextID   int64
	nextEnt  int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{parties: make(map[int64]accounts.Party)}
}

// Seed stores a party with zero balances.
func (s *Store) Seed(p accounts.Party) accounts.Party {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	} else if p.ID > s.nextID {
		s.nextID = p.ID
	}
	p.Balance, p.TotalSpent = 0, 0
	s.parties[p.ID] = p
	return p
}

// Party returns the current projection of a party.
func (s *Store) Party(id int64) accounts.Party {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parties[id]
}

// Entries returns a party's ledger in posting order.
func (s *Store) Entries(partyID int64) []accounts.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []accounts.Entry
	for _, e := range s.entries {
		if e.PartyID == partyID {
			out = append(out, e)
		}
	}
	return out
}

// Expenses returns recorded expenses.
func (s *Store) Expenses() []accounts.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]accounts.Expense(nil), s.expenses...)
}

// LedgerSums returns the ledger totals of a party.
func (s *Store) LedgerSums(partyID int64) (balance, spent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.PartyID == partyID {
			balance += e.Amount
			spent += e.Spent
		}
	}
	return balance, spent
}

// Corrupt overwrites a party balance without a ledger entry.
func (s *Store) Corrupt(partyID int64, balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.parties[partyID]
	p.Balance = balance
	s.parties[partyID] = p
}

// Snapshot captures the store and returns a function restoring it.
func (s *Store) Snapshot() (restore func()) {
	s.mu.Lock()
	parties := make(map[int64]accounts.Party, len(s.parties))
	for k, v := range s.parties {
		parties[k] = v
	}
	entries := append([]accounts.Entry(nil), s.entries...)
	expenses := append([]accounts.Expense(nil), s.expenses...)
	nextID, nextEnt := s.nextID, s.nextEnt
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.parties, s.entries, s.expenses = parties, entries, expenses
		s.nextID, s.nextEnt = nextID, nextEnt
	}
}

// WithTx runs fn serialised, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	restore := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		restore()
		return err
	}
	return nil
}

// GetPartyForUpdate implements accounts.LedgerTx.
func (s *Store) GetPartyForUpdate(_ context.Context, id int64) (accounts.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return accounts.Party{}, accounts.ErrPartyNotFound
	}
	return p, nil
}

// InsertLedgerEntry implements accounts.LedgerTx.
func (s *Store) InsertLedgerEntry(_ context.Context, e accounts.Entry) (accounts.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parties[e.PartyID]; !ok {
		return accounts.Entry{}, accounts.ErrPartyNotFound
	}
	s.nextEnt++
	e.ID = s.nextEnt
	s.entries = append(s.entries, e)
	return e, nil
}

// ApplyBalanceDelta implements accounts.LedgerTx.
func (s *Store) ApplyBalanceDelta(_ context.Context, id int64, balanceDelta, spentDelta float64) (accounts.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return accounts.Party{}, accounts.ErrPartyNotFound
	}
	p.Balance += balanceDelta
	p.TotalSpent += spentDelta
	s.parties[id] = p
	return p, nil
}

// SumPartyLedger implements accounts.LedgerTx.
func (s *Store) SumPartyLedger(_ context.Context, id int64) (float64, float64, error) {
	b, sp := s.LedgerSums(id)
	return b, sp, nil
}

// InsertExpense implements accounts.TxRepository.
func (s *Store) InsertExpense(_ context.Context, e accounts.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append(s.expenses, e)
	return nil
}

// CreateParty implements accounts.RepositoryPort.
func (s *Store) CreateParty(_ context.Context, in accounts.PartyInput) (accounts.Party, error) {
	return s.Seed(accounts.Party{Kind: accounts.PartyKind(in.Kind), Name: in.Name, Phone: in.Phone, Email: in.Email, Address: in.Address}), nil
}

// UpdateParty implements accounts.RepositoryPort.
func (s *Store) UpdateParty(_ context.Context, id int64, in accounts.PartyInput) (accounts.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return accounts.Party{}, accounts.ErrPartyNotFound
	}
	p.Name, p.Phone, p.Email, p.Address = in.Name, in.Phone, in.Email, in.Address
	s.parties[id] = p
	return p, nil
}

// DeleteParty implements accounts.RepositoryPort.
func (s *Store) DeleteParty(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parties[id]; !ok {
		return accounts.ErrPartyNotFound
	}
	for _, e := range s.entries {
		if e.PartyID == id {
			return accounts.ErrPartyInUse
		}
	}
	delete(s.parties, id)
	return nil
}

// GetParty implements accounts.RepositoryPort.
func (s *Store) GetParty(ctx context.Context, id int64) (accounts.Party, error) {
	return s.GetPartyForUpdate(ctx, id)
}

// ListParties implements accounts.RepositoryPort.
func (s *Store) ListParties(_ context.Context, filter accounts.PartyFilter) ([]accounts.Party, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []accounts.Party
	for _, p := range s.parties {
		if filter.Kind != "" && p.Kind != filter.Kind {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

// Statement implements accounts.RepositoryPort.
func (s *Store) Statement(_ context.Context, partyID int64, limit int) ([]accounts.Entry, error) {
	rows := s.Entries(partyID)
	out := make([]accounts.Entry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// BalanceDrift implements accounts.RepositoryPort.
func (s *Store) BalanceDrift(_ context.Context) ([]accounts.Drift, error) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.parties))
	for id := range s.parties {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]accounts.Drift, 0)
	for _, id := range ids {
		p := s.Party(id)
		b, sp := s.LedgerSums(id)
		if p.Balance != b || p.TotalSpent != sp {
			out = append(out, accounts.Drift{PartyID: id, Name: p.Name, StoredBalance: p.Balance, LedgerBalance: b, StoredSpent: p.TotalSpent, LedgerSpent: sp})
		}
	}
	return out, nil
}
