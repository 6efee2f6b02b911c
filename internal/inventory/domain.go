package inventory

import (
	"fmt"
	"time"

	"github.com/ovenly/ovenly/internal/shared"
)

// TransactionType enumerates supported inventory movements.
type TransactionType string

const (
	// TransactionTypeIn represents an inbound movement.
	TransactionTypeIn TransactionType = "in"
	// TransactionTypeOut represents an outbound movement.
	TransactionTypeOut TransactionType = "out"
	// TransactionTypeAdjust is a signed manual correction.
	TransactionTypeAdjust TransactionType = "adjustment"
)

// Valid reports whether t is a known movement type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIn, TransactionTypeOut, TransactionTypeAdjust:
		return true
	}
	return false
}

// Item is a stocked raw material or packaging unit.
type Item struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	CurrentStock float64   `json:"currentStock"`
	MinLevel     float64   `json:"minLevel"`
	Unit         string    `json:"unit"`
	CostPerUnit  float64   `json:"costPerUnit"`
	Supplier     string    `json:"supplier"`
	CategoryID   *int64    `json:"categoryId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ItemInput carries the editable attributes of an item. Stock and cost only
// change through the ledger.
type ItemInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	MinLevel    float64 `json:"minLevel" validate:"gte=0"`
	Unit        string  `json:"unit" validate:"required,max=20"`
	CostPerUnit float64 `json:"costPerUnit" validate:"gte=0"`
	Supplier    string  `json:"supplier" validate:"max=200"`
	CategoryID  *int64  `json:"categoryId,omitempty"`
	// OpeningStock is only honoured on create and is booked as an "in" movement.
	OpeningStock float64 `json:"openingStock" validate:"gte=0"`
}

// Transaction is an immutable ledger row.
type Transaction struct {
	ID        int64           `json:"id"`
	ItemID    int64           `json:"inventoryItemId"`
	Type      TransactionType `json:"type"`
	Quantity  float64         `json:"quantity"`
	UnitCost  float64         `json:"unitCost"`
	Reason    string          `json:"reason"`
	Reference string          `json:"reference"`
	CreatedBy int64           `json:"createdBy,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Delta is the signed effect of the row on current stock.
func (t Transaction) Delta() float64 {
	return SignedQuantity(t.Type, t.Quantity)
}

// SignedQuantity converts a typed quantity into its stock delta.
func SignedQuantity(typ TransactionType, qty float64) float64 {
	if typ == TransactionTypeOut {
		return -qty
	}
	return qty
}

// LowStockItem is an item at or below its minimum level.
type LowStockItem struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	CurrentStock   float64 `json:"currentStock"`
	MinLevel       float64 `json:"minLevel"`
	Unit           string  `json:"unit"`
	Supplier       string  `json:"supplier"`
	ShortageAmount float64 `json:"shortageAmount"`
}

// Movement is a request to post one ledger row.
type Movement struct {
	ItemID    int64
	Type      TransactionType
	Quantity  float64
	Reason    string
	Reference string
	ActorID   int64
}

// Receipt is an inbound movement that also re-prices the item.
type Receipt struct {
	ItemID    int64
	Quantity  float64
	UnitPrice float64
	Reason    string
	Reference string
	ActorID   int64
}

// ReceiptResult reports the state of an item after a receipt.
type ReceiptResult struct {
	Transaction Transaction `json:"transaction"`
	NewStock    float64     `json:"newStock"`
	NewCost     float64     `json:"newCost"`
}

// Drift describes an item whose stored stock disagrees with its ledger.
type Drift struct {
	ItemID      int64   `json:"itemId"`
	Name        string  `json:"name"`
	StoredStock float64 `json:"storedStock"`
	LedgerStock float64 `json:"ledgerStock"`
}

// ListFilter narrows item listings.
type ListFilter struct {
	Search     string
	CategoryID int64
	Page       int
	PerPage    int
}

var (
	// ErrItemNotFound indicates the inventory item does not exist.
	ErrItemNotFound = fmt.Errorf("inventory: item %w", shared.ErrNotFound)
	// ErrInsufficientStock is returned when a movement would drive stock negative.
	ErrInsufficientStock = fmt.Errorf("inventory: %w", shared.ErrInsufficientStock)
	// ErrInvalidQuantity indicates a zero quantity or a non-positive in/out quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: quantity must be non zero and positive for in/out", shared.ErrInvalidInput)
	// ErrInvalidUnitCost indicates a negative cost.
	ErrInvalidUnitCost = fmt.Errorf("%w: inventory: unit cost must be >= 0", shared.ErrInvalidInput)
	// ErrInvalidType indicates an unknown transaction type.
	ErrInvalidType = fmt.Errorf("%w: inventory: type must be in, out or adjustment", shared.ErrInvalidInput)
	// ErrItemInUse blocks deleting items referenced by ingredients or ledger rows.
	ErrItemInUse = fmt.Errorf("inventory: item is referenced by ingredients or transactions: %w", shared.ErrConflict)
)
