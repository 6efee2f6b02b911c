package costing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ovenly/ovenly/internal/catalog"
	"github.com/ovenly/ovenly/internal/shared"
)

// CatalogPort is the product data the engine reads and writes.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	Ingredients(ctx context.Context, productID int64) ([]catalog.Ingredient, error)
	ListProductIDs(ctx context.Context) ([]int64, error)
	UpdateCostAndMargin(ctx context.Context, id int64, cost, margin float64) error
}

// SettingsStore persists the settings key-value table.
type SettingsStore interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
}

// CostUpdate reports the outcome of UpdateProductCost.
type CostUpdate struct {
	ProductID int64     `json:"productId"`
	Cost      float64   `json:"cost"`
	Margin    float64   `json:"margin"`
	Breakdown Breakdown `json:"breakdown"`
}

// Service computes and stores production costs.
type Service struct {
	catalog  CatalogPort
	settings SettingsStore
	audit    shared.AuditRecorder
	notifier shared.ChangeNotifier
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(catalog CatalogPort, settings SettingsStore, audit shared.AuditRecorder, notifier shared.ChangeNotifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: catalog, settings: settings, audit: audit, notifier: notifier, logger: logger}
}

// GetSettings loads the typed settings, falling back to defaults per key.
func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	values, err := s.settings.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	return SettingsFromMap(values)
}

// UpdateSettings validates and stores settings.
func (s *Service) UpdateSettings(ctx context.Context, in Settings, actorID int64) (Settings, error) {
	if err := in.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.settings.Save(ctx, in.Map()); err != nil {
		return Settings{}, err
	}
	if s.audit != nil {
		meta := map[string]any{}
		for k, v := range in.Map() {
			meta[k] = v
		}
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: "costing:settings_update", Entity: "settings", EntityID: "costing", Meta: meta}); err != nil {
			s.logger.Warn("costing audit", slog.Any("error", err))
		}
	}
	return in, nil
}

// CalculateProductionCost rolls up cost for quantity units of a product.
func (s *Service) CalculateProductionCost(ctx context.Context, productID int64, quantity float64) (Breakdown, error) {
	if !ValidQuantity(quantity) {
		return Breakdown{}, ErrInvalidQuantity
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return Breakdown{}, err
	}
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	bom, err := s.catalog.Ingredients(ctx, productID)
	if err != nil {
		return Breakdown{}, err
	}
	return Calculate(bom, settings, quantity)
}

// UpdateProductCost stores the unit cost of a product and its recomputed margin.
func (s *Service) UpdateProductCost(ctx context.Context, productID int64) (CostUpdate, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return CostUpdate{}, err
	}
	update, err := s.updateOne(ctx, productID, settings)
	if err != nil {
		return CostUpdate{}, err
	}
	s.bump(ctx)
	return update, nil
}

// RefreshAllProductCosts recomputes every product with a bill of materials.
// A product that fails is logged and skipped; the failures are joined into
// the returned error. It returns the number of products updated.
func (s *Service) RefreshAllProductCosts(ctx context.Context) (int, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	ids, err := s.catalog.ListProductIDs(ctx)
	if err != nil {
		return 0, err
	}
	var (
		updated int
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.updateOne(ctx, id, settings); err != nil {
			s.logger.Warn("refresh product cost", slog.Int64("product_id", id), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("costing: refresh product %d: %w", id, err))
			continue
		}
		updated++
	}
	if updated > 0 {
		s.bump(ctx)
	}
	return updated, errors.Join(errs...)
}

func (s *Service) updateOne(ctx context.Context, productID int64, settings Settings) (CostUpdate, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return CostUpdate{}, err
	}
	bom, err := s.catalog.Ingredients(ctx, productID)
	if err != nil {
		return CostUpdate{}, err
	}
	breakdown, err := Calculate(bom, settings, 1)
	if err != nil {
		return CostUpdate{}, err
	}
	margin := catalog.Margin(product.Price, breakdown.PerUnitCost)
	if err := s.catalog.UpdateCostAndMargin(ctx, productID, breakdown.PerUnitCost, margin); err != nil {
		return CostUpdate{}, err
	}
	s.logger.Debug("product cost updated",
		slog.Int64("product_id", productID),
		slog.Float64("cost", breakdown.PerUnitCost),
		slog.Float64("margin", margin))
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{Action: "costing:product_cost", Entity: "product", EntityID: strconv.FormatInt(productID, 10), Meta: map[string]any{"cost": breakdown.PerUnitCost, "margin": margin}}); err != nil {
			s.logger.Warn("costing audit", slog.Any("error", err))
		}
	}
	return CostUpdate{ProductID: productID, Cost: breakdown.PerUnitCost, Margin: margin, Breakdown: breakdown}, nil
}

func (s *Service) bump(ctx context.Context) {
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("costing cache bump", slog.Any("error", err))
	}
}
