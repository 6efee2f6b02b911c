package purchasing

import (
	"fmt"
	"time"

	"github.com/ovenly/ovenly/internal/shared"
)

// Status enumerates purchase lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReceived  Status = "received"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReceived, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusReceived, StatusPaid, StatusCancelled},
	StatusReceived: {StatusPaid},
}

// CanTransition reports whether a purchase may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Purchase groups supplier line items.
type Purchase struct {
	ID            int64     `json:"id"`
	Number        string    `json:"number"`
	SupplierName  string    `json:"supplierName"`
	PartyID       *int64    `json:"partyId,omitempty"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        Status    `json:"status"`
	TotalAmount   float64   `json:"totalAmount"`
	StockSynced   bool      `json:"stockSynced"`
	Notes         string    `json:"notes"`
	CreatedBy     int64     `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	Items         []Item    `json:"items"`
}

// Item is one purchase line.
type Item struct {
	ID              int64   `json:"id"`
	PurchaseID      int64   `json:"purchaseId"`
	InventoryItemID int64   `json:"inventoryItemId"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	Total           float64 `json:"total"`
}

// LineInput is the writable shape of a purchase line.
type LineInput struct {
	InventoryItemID int64   `json:"inventoryItemId" validate:"required,gt=0"`
	Quantity        float64 `json:"quantity" validate:"gt=0"`
	UnitPrice       float64 `json:"unitPrice" validate:"gte=0"`
}

// CreateInput describes a new purchase.
type CreateInput struct {
	SupplierName  string
	PartyID       *int64
	PaymentMethod string
	Notes         string
	Items         []LineInput
	// IdempotencyKey, when set, makes a retried request fail with ErrDuplicateRequest.
	IdempotencyKey string
	ActorID        int64
}

// ListFilter narrows purchase listings.
type ListFilter struct {
	Status  Status
	PartyID int64
	Page    int
	PerPage int
}

var (
	// ErrPurchaseNotFound indicates the purchase does not exist.
	ErrPurchaseNotFound = fmt.Errorf("purchasing: purchase %w", shared.ErrNotFound)
	// ErrNoLines rejects purchases without items.
	ErrNoLines = fmt.Errorf("%w: purchasing: at least one item required", shared.ErrInvalidInput)
	// ErrInvalidLine rejects non-positive quantities or negative prices.
	ErrInvalidLine = fmt.Errorf("%w: purchasing: invalid purchase line", shared.ErrInvalidInput)
	// ErrInvalidStatus rejects unknown or disallowed status changes.
	ErrInvalidStatus = fmt.Errorf("%w: purchasing: status change not allowed", shared.ErrInvalidInput)
	// ErrDuplicateRequest indicates the idempotency key was already used.
	ErrDuplicateRequest = fmt.Errorf("purchasing: duplicate request: %w", shared.ErrConflict)
)
