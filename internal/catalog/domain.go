package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovenly/ovenly/internal/shared"
)

// CategoryKind separates product and inventory categories.
type CategoryKind string

const (
	CategoryProduct   CategoryKind = "product"
	CategoryInventory CategoryKind = "inventory"
)

// Product is a sellable bakery good.
type Product struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SKU        *string   `json:"sku,omitempty"`
	Price      float64   `json:"price"`
	Cost       float64   `json:"cost"`
	Margin     float64   `json:"margin"`
	CategoryID *int64    `json:"categoryId,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ProductInput is the writable shape of a product.
type ProductInput struct {
	Name       string  `json:"name" validate:"required,max=200"`
	SKU        *string `json:"sku,omitempty" validate:"omitempty,max=64"`
	Price      float64 `json:"price" validate:"gte=0"`
	Cost       float64 `json:"cost" validate:"gte=0"`
	CategoryID *int64  `json:"categoryId,omitempty"`
	IsActive   *bool   `json:"isActive,omitempty"`
}

// Category groups products or inventory items.
type Category struct {
	ID   int64        `json:"id"`
	Name string       `json:"name"`
	Kind CategoryKind `json:"kind"`
}

// CategoryInput creates a category.
type CategoryInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Kind string `json:"kind" validate:"omitempty,oneof=product inventory"`
}

// Ingredient is one bill-of-materials line joined to its item.
type Ingredient struct {
	ProductID       int64   `json:"productId"`
	InventoryItemID int64   `json:"inventoryItemId"`
	Quantity        float64 `json:"quantity"`
	Unit            string  `json:"unit"`
	ItemName        string  `json:"itemName"`
	CostPerUnit     float64 `json:"costPerUnit"`
	CurrentStock    float64 `json:"currentStock"`
}

// IngredientInput is one BOM line to store.
type IngredientInput struct {
	InventoryItemID int64   `json:"inventoryItemId" validate:"required,gt=0"`
	Quantity        float64 `json:"quantity" validate:"gt=0"`
	Unit            string  `json:"unit" validate:"max=20"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search     string
	CategoryID int64
	ActiveOnly bool
	Page       int
	PerPage    int
}

var (
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = fmt.Errorf("catalog: product %w", shared.ErrNotFound)
	// ErrDuplicateSKU indicates another product owns the SKU.
	ErrDuplicateSKU = fmt.Errorf("catalog: sku already in use: %w", shared.ErrConflict)
	// ErrDuplicateCategory indicates the category name exists for the kind.
	ErrDuplicateCategory = fmt.Errorf("catalog: category already exists: %w", shared.ErrConflict)
	// ErrProductInUse blocks deleting products with sales or production history.
	ErrProductInUse = fmt.Errorf("catalog: product has sales or production history: %w", shared.ErrConflict)
	// ErrUnknownIngredientItem indicates a BOM line references a missing inventory item.
	ErrUnknownIngredientItem = fmt.Errorf("%w: catalog: ingredient references unknown inventory item", shared.ErrInvalidInput)
)

// MinMargin is the lowest margin stored for a product.
const MinMargin = -1_000_000

var minMargin = decimal.NewFromInt(MinMargin)

// Margin returns (price-cost)/price*100 rounded to two places, or 0 when
// price is 0. Results below MinMargin are clamped to it.
func Margin(price, cost float64) float64 {
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return 0
	}
	m := p.Sub(decimal.NewFromFloat(cost)).Div(p).Mul(decimal.NewFromInt(100)).Round(2)
	if m.LessThan(minMargin) {
		m = minMargin
	}
	return m.InexactFloat64()
}
