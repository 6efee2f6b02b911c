package production

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/shared"
)

// Status enumerates schedule states.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDelayed    Status = "delayed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusDelayed:
		return true
	}
	return false
}

// ScheduleItem is one planned production run.
type ScheduleItem struct {
	ID             int64      `json:"id"`
	ProductID      int64      `json:"productId"`
	ProductName    string     `json:"productName"`
	Quantity       float64    `json:"quantity"`
	ActualQuantity *float64   `json:"actualQuantity,omitempty"`
	ScheduledDate  time.Time  `json:"scheduledDate"`
	Status         Status     `json:"status"`
	Notes          string     `json:"notes"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Requirement is the advisory stock check for one ingredient of a run.
type Requirement struct {
	ItemID     int64   `json:"itemId"`
	Name       string  `json:"name"`
	Unit       string  `json:"unit"`
	Required   float64 `json:"required"`
	Available  float64 `json:"available"`
	Sufficient bool    `json:"sufficient"`
}

// Planned is a schedule entry with its ingredient requirements.
type Planned struct {
	ScheduleItem
	IngredientRequirements []Requirement `json:"ingredientRequirements"`
	Sufficient             bool          `json:"sufficient"`
}

// CreateInput describes a new schedule entry.
type CreateInput struct {
	ProductID     int64
	Quantity      float64
	ScheduledDate time.Time
	Notes         string
	ActorID       int64
}

// ListFilter narrows schedule listings. Zero dates are open bounds.
type ListFilter struct {
	From    time.Time
	To      time.Time
	Status  Status
	Page    int
	PerPage int
}

// Consumption is one ingredient drawn by a processed run.
type Consumption struct {
	ItemID        int64   `json:"itemId"`
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	StockAfter    float64 `json:"stockAfter"`
	TransactionID int64   `json:"transactionId"`
}

// ProcessResult reports a completed run.
type ProcessResult struct {
	Schedule ScheduleItem  `json:"schedule"`
	Consumed []Consumption `json:"consumed"`
}

var (
	// ErrScheduleNotFound indicates the schedule entry does not exist.
	ErrScheduleNotFound = fmt.Errorf("production: production schedule %w", shared.ErrNotFound)
	// ErrAlreadyCompleted blocks processing a run twice.
	ErrAlreadyCompleted = fmt.Errorf("production: schedule already completed: %w", shared.ErrConflict)
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = fmt.Errorf("%w: production: quantity must be > 0", shared.ErrInvalidInput)
	// ErrInvalidStatus rejects unknown statuses and direct completion.
	ErrInvalidStatus = fmt.Errorf("%w: production: status change not allowed", shared.ErrInvalidInput)
)

// Requirements scales a bill of materials by quantity and compares each line
// with current stock. It never blocks processing.
func Requirements(bom []catalog.Ingredient, quantity float64) ([]Requirement, bool) {
	out := make([]Requirement, 0, len(bom))
	all := true
	for _, ing := range bom {
		required := scaled(ing.Quantity, quantity)
		ok := ing.CurrentStock >= required
		all = all && ok
		out = append(out, Requirement{
			ItemID:     ing.InventoryItemID,
			Name:       ing.ItemName,
			Unit:       ing.Unit,
			Required:   required,
			Available:  ing.CurrentStock,
			Sufficient: ok,
		})
	}
	return out, all
}

func scaled(perUnit, quantity float64) float64 {
	return decimal.NewFromFloat(perUnit).Mul(decimal.NewFromFloat(quantity)).Round(4).InexactFloat64()
}
