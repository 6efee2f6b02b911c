package costing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/shared"
)

// Breakdown is the cost rollup for a batch.
type Breakdown struct {
	Quantity     float64 `json:"quantity"`
	MaterialCost float64 `json:"materialCost"`
	LaborCost    float64 `json:"laborCost"`
	OverheadCost float64 `json:"overheadCost"`
	TotalCost    float64 `json:"totalCost"`
	PerUnitCost  float64 `json:"perUnitCost"`
}

// ErrInvalidQuantity is returned for non-positive or non-finite batch sizes.
var ErrInvalidQuantity = fmt.Errorf("%w: costing: quantity must be > 0", shared.ErrInvalidInput)

var hundred = decimal.NewFromInt(100)

// ValidQuantity reports whether q is a usable batch size.
func ValidQuantity(q float64) bool {
	return q > 0 && !math.IsInf(q, 0)
}

// Calculate rolls up material, labor and overhead cost for quantity units of a
// product with the given bill of materials.
func Calculate(bom []catalog.Ingredient, s Settings, quantity float64) (Breakdown, error) {
	if !ValidQuantity(quantity) {
		return Breakdown{}, ErrInvalidQuantity
	}
	qty := decimal.NewFromFloat(quantity)

	perUnitMaterial := decimal.Zero
	for _, ing := range bom {
		perUnitMaterial = perUnitMaterial.Add(decimal.NewFromFloat(ing.Quantity).Mul(decimal.NewFromFloat(ing.CostPerUnit)))
	}
	material := perUnitMaterial.Mul(qty)

	labor := decimal.NewFromFloat(s.LaborCostPerHour).Mul(decimal.NewFromFloat(s.ProductionTimeHours))
	if s.LaborScalesWithQuantity {
		labor = labor.Mul(qty)
	}

	overhead := material.Add(labor).Mul(decimal.NewFromFloat(s.OverheadPercentage)).Div(hundred)
	total := material.Add(labor).Add(overhead)

	return Breakdown{
		Quantity:     quantity,
		MaterialCost: material.Round(4).InexactFloat64(),
		LaborCost:    labor.Round(4).InexactFloat64(),
		OverheadCost: overhead.Round(4).InexactFloat64(),
		TotalCost:    total.Round(4).InexactFloat64(),
		PerUnitCost:  total.DivRound(qty, 4).InexactFloat64(),
	}, nil
}
