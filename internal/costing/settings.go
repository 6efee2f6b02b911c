package costing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovenly/ovenly/internal/platform/db"
	"github.com/ovenly/ovenly/internal/shared"
)

// Setting keys in the settings table.
const (
	KeyLaborCostPerHour        = "labor_cost_per_hour"
	KeyOverheadPercentage      = "overhead_percentage"
	KeyProductionTimeHours     = "production_time_hours"
	KeyLaborScalesWithQuantity = "labor_scales_with_quantity"
)

// Settings drive the cost rollup.
type Settings struct {
	LaborCostPerHour    float64 `json:"laborCostPerHour" validate:"gte=0"`
	OverheadPercentage  float64 `json:"overheadPercentage" validate:"gte=0,lte=1000"`
	ProductionTimeHours float64 `json:"productionTimeHours" validate:"gte=0"`
	// LaborScalesWithQuantity multiplies labor by batch size. When false the
	// production hours are treated as a fixed cost per batch.
	LaborScalesWithQuantity bool `json:"laborScalesWithQuantity"`
}

// DefaultSettings is used for keys missing from the table.
func DefaultSettings() Settings {
	return Settings{
		LaborCostPerHour:        15,
		OverheadPercentage:      20,
		ProductionTimeHours:     1,
		LaborScalesWithQuantity: true,
	}
}

// Validate rejects negative rates.
func (s Settings) Validate() error {
	if s.LaborCostPerHour < 0 || s.OverheadPercentage < 0 || s.ProductionTimeHours < 0 {
		return fmt.Errorf("%w: costing: settings must be non-negative", shared.ErrInvalidInput)
	}
	return nil
}

// SettingsFromMap overlays stored values on the defaults. Unparseable values are reported.
func SettingsFromMap(values map[string]string) (Settings, error) {
	s := DefaultSettings()
	floats := map[string]*float64{
		KeyLaborCostPerHour:    &s.LaborCostPerHour,
		KeyOverheadPercentage:  &s.OverheadPercentage,
		KeyProductionTimeHours: &s.ProductionTimeHours,
	}
	for key, dst := range floats {
		raw, ok := values[key]
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Settings{}, fmt.Errorf("costing: setting %s=%q: %w", key, raw, err)
		}
		*dst = v
	}
	if raw, ok := values[KeyLaborScalesWithQuantity]; ok && raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("costing: setting %s=%q: %w", KeyLaborScalesWithQuantity, raw, err)
		}
		s.LaborScalesWithQuantity = v
	}
	return s, nil
}

// Map renders settings into their stored string form.
func (s Settings) Map() map[string]string {
	return map[string]string{
		KeyLaborCostPerHour:        strconv.FormatFloat(s.LaborCostPerHour, 'f', -1, 64),
		KeyOverheadPercentage:      strconv.FormatFloat(s.OverheadPercentage, 'f', -1, 64),
		KeyProductionTimeHours:     strconv.FormatFloat(s.ProductionTimeHours, 'f', -1, 64),
		KeyLaborScalesWithQuantity: strconv.FormatBool(s.LaborScalesWithQuantity),
	}
}

// SettingsRepository reads and writes the settings key-value table.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository constructs SettingsRepository.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Load returns all stored settings.
func (r *SettingsRepository) Load(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Save upserts values in one transaction.
func (r *SettingsRepository) Save(ctx context.Context, values map[string]string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for k, v := range values {
			if _, err := tx.Exec(ctx, `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}
