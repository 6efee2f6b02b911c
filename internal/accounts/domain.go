package accounts

import (
	"fmt"
	"time"

	"github.com/ovenly/ovenly/internal/shared"
)

// PartyKind distinguishes customers from suppliers.
type PartyKind string

const (
	KindCustomer PartyKind = "customer"
	KindSupplier PartyKind = "supplier"
)

// EntryKind classifies ledger entries.
type EntryKind string

const (
	EntrySale       EntryKind = "sale"
	EntryPurchase   EntryKind = "purchase"
	EntryPayment    EntryKind = "payment"
	EntryAdjustment EntryKind = "adjustment"
)

// Party is a customer or supplier with projected running totals.
type Party struct {
	ID         int64     `json:"id"`
	Kind       PartyKind `json:"kind"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Address    string    `json:"address"`
	Balance    float64   `json:"balance"`
	TotalSpent float64   `json:"totalSpent"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PartyInput is the writable shape of a party.
type PartyInput struct {
	Kind    string `json:"kind" validate:"required,oneof=customer supplier"`
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"max=50"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
}

// Entry is an append-only ledger row. Amount is the signed effect on the
// balance, Spent the effect on total spent.
type Entry struct {
	ID        int64     `json:"id"`
	PartyID   int64     `json:"partyId"`
	Kind      EntryKind `json:"kind"`
	Amount    float64   `json:"amount"`
	Spent     float64   `json:"spent"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expense is a cash outflow row.
type Expense struct {
	Category    string
	Amount      float64
	Description string
	PartyID     int64
	Method      string
}

// ExpenseSupplierPayment is the expense category for supplier payments.
const ExpenseSupplierPayment = "supplier_payment"

// Drift describes a party whose projection disagrees with its ledger.
type Drift struct {
	PartyID       int64   `json:"partyId"`
	Name          string  `json:"name"`
	StoredBalance float64 `json:"storedBalance"`
	LedgerBalance float64 `json:"ledgerBalance"`
	StoredSpent   float64 `json:"storedSpent"`
	LedgerSpent   float64 `json:"ledgerSpent"`
}

// PartyFilter narrows party listings.
type PartyFilter struct {
	Kind    PartyKind
	Search  string
	Page    int
	PerPage int
}

var (
	// ErrPartyNotFound indicates the party does not exist.
	ErrPartyNotFound = fmt.Errorf("accounts: party %w", shared.ErrNotFound)
	// ErrWrongPartyKind indicates e.g. a customer payment against a supplier.
	ErrWrongPartyKind = fmt.Errorf("%w: accounts: party kind does not match operation", shared.ErrInvalidInput)
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = fmt.Errorf("%w: accounts: amount must be > 0", shared.ErrInvalidInput)
	// ErrPartyInUse blocks deleting parties with ledger history.
	ErrPartyInUse = fmt.Errorf("accounts: party has ledger history: %w", shared.ErrConflict)
)
