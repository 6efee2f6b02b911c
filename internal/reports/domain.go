package reports

import (
	"fmt"
	"time"

	"github.com/ovenly/ovenly/internal/shared"
)

// DashboardStats is the headline summary of the bakery.
type DashboardStats struct {
	TodaySales         float64   `json:"todaySales"`
	MonthSales         float64   `json:"monthSales"`
	TotalProducts      int       `json:"totalProducts"`
	LowStockCount      int       `json:"lowStockCount"`
	PendingProductions int       `json:"pendingProductions"`
	InventoryValue     float64   `json:"inventoryValue"`
	ReceivablesTotal   float64   `json:"receivablesTotal"`
	PayablesTotal      float64   `json:"payablesTotal"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// DailyTotal is the sales sum of one calendar day.
type DailyTotal struct {
	Day   time.Time
	Total float64
	Count int
}

// TrendPoint is one day of the sales trend.
type TrendPoint struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

const (
	defaultTrendDays = 30
	maxTrendDays     = 365
)

// ErrInvalidDays rejects trend windows outside 1..365.
var ErrInvalidDays = fmt.Errorf("%w: reports: days must be between 1 and %d", shared.ErrInvalidInput, maxTrendDays)

// FillTrend expands daily totals into one point per day of [from, from+days),
// inserting zero points for days without sales.
func FillTrend(from time.Time, days int, totals []DailyTotal) []TrendPoint {
	byDay := make(map[string]DailyTotal, len(totals))
	for _, t := range totals {
		byDay[t.Day.UTC().Format(time.DateOnly)] = t
	}
	out := make([]TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i).Format(time.DateOnly)
		t := byDay[day]
		out = append(out, TrendPoint{Date: day, Total: t.Total, Count: t.Count})
	}
	return out
}
