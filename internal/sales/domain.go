package sales

import (
	"fmt"
	"time"

	"github.com/ovenly/ovenly/internal/shared"
)

// PaymentMethod enumerates how a sale was settled.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentCredit PaymentMethod = "credit"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard || m == PaymentCredit
}

// Sale is a recorded counter or account sale.
type Sale struct {
	ID            int64         `json:"id"`
	Number        string        `json:"number"`
	CustomerID    *int64        `json:"customerId,omitempty"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	TotalAmount   float64       `json:"totalAmount"`
	CreatedBy     int64         `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
	Items         []Item        `json:"items"`
}

// Item is one sold product line.
type Item struct {
	ID        int64   `json:"id"`
	SaleID    int64   `json:"saleId"`
	ProductID int64   `json:"productId"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Total     float64 `json:"total"`
}

// LineInput is a requested sale line. A nil UnitPrice sells at the catalog price.
type LineInput struct {
	ProductID int64    `json:"productId" validate:"required,gt=0"`
	Quantity  float64  `json:"quantity" validate:"gt=0"`
	UnitPrice *float64 `json:"unitPrice,omitempty" validate:"omitempty,gte=0"`
}

// RecordInput describes a new sale.
type RecordInput struct {
	CustomerID    *int64
	PaymentMethod PaymentMethod
	Items         []LineInput
	ActorID       int64
}

// ListFilter narrows sale listings. Zero dates are open bounds.
type ListFilter struct {
	From       time.Time
	To         time.Time
	CustomerID int64
	Page       int
	PerPage    int
}

var (
	// ErrSaleNotFound indicates the sale does not exist.
	ErrSaleNotFound = fmt.Errorf("sales: sale %w", shared.ErrNotFound)
	// ErrNoLines rejects sales without items.
	ErrNoLines = fmt.Errorf("%w: sales: at least one item required", shared.ErrInvalidInput)
	// ErrInvalidLine rejects non-positive quantities or negative prices.
	ErrInvalidLine = fmt.Errorf("%w: sales: invalid sale line", shared.ErrInvalidInput)
	// ErrInvalidPayment rejects unknown payment methods.
	ErrInvalidPayment = fmt.Errorf("%w: sales: payment method must be cash, card or credit", shared.ErrInvalidInput)
	// ErrCreditNeedsCustomer rejects anonymous credit sales.
	ErrCreditNeedsCustomer = fmt.Errorf("%w: sales: credit sales require a customer", shared.ErrInvalidInput)
)
