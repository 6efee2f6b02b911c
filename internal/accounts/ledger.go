package accounts

import (
	"context"
	"time"
)

// LedgerTx is the set of row-locked operations used to post party entries.
// Purchasing and sales embed it in their transactional repositories.
type LedgerTx interface {
	GetPartyForUpdate(ctx context.Context, partyID int64) (Party, error)
	InsertLedgerEntry(ctx context.Context, e Entry) (Entry, error)
	// ApplyBalanceDelta performs balance = balance + balanceDelta, total_spent = total_spent + spentDelta.
	ApplyBalanceDelta(ctx context.Context, partyID int64, balanceDelta, spentDelta float64) (Party, error)
	SumPartyLedger(ctx context.Context, partyID int64) (balance, spent float64, err error)
}

// Posting is one entry to append to a party ledger.
type Posting struct {
	PartyID   int64
	Kind      EntryKind
	Amount    float64
	Spent     float64
	Reference string
	// Expect, when set, requires the party to be of that kind.
	Expect PartyKind
}

// Post appends an entry and moves the party projection by the same amounts in
// the caller's transaction.
func Post(ctx context.Context, tx LedgerTx, p Posting) (Entry, Party, error) {
	party, err := tx.GetPartyForUpdate(ctx, p.PartyID)
	if err != nil {
		return Entry{}, Party{}, err
	}
	if p.Expect != "" && party.Kind != p.Expect {
		return Entry{}, Party{}, ErrWrongPartyKind
	}
	entry, err := tx.InsertLedgerEntry(ctx, Entry{
		PartyID:   p.PartyID,
		Kind:      p.Kind,
		Amount:    p.Amount,
		Spent:     p.Spent,
		Reference: p.Reference,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Entry{}, Party{}, err
	}
	party, err = tx.ApplyBalanceDelta(ctx, p.PartyID, p.Amount, p.Spent)
	if err != nil {
		return Entry{}, Party{}, err
	}
	return entry, party, nil
}
