package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ovenly/ovenly/internal/shared"
)

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListCategories(ctx context.Context, kind CategoryKind) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	Ingredients(ctx context.Context, productID int64) ([]Ingredient, error)
	ReplaceIngredients(ctx context.Context, productID int64, lines []IngredientInput) error
}

// Service coordinates catalog operations.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	notifier shared.ChangeNotifier
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, notifier shared.ChangeNotifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger}
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, shared.Pagination, error) {
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	items, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// GetProduct fetches one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct validates and stores a product; margin is derived from price and cost.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput, actorID int64) (Product, error) {
	p, err := buildProduct(in)
	if err != nil {
		return Product{}, err
	}
	out, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "catalog:product_create", out.ID, map[string]any{"name": out.Name})
	s.bump(ctx)
	return out, nil
}

// UpdateProduct rewrites a product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput, actorID int64) (Product, error) {
	p, err := buildProduct(in)
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	out, err := s.repo.UpdateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "catalog:product_update", id, map[string]any{"price": out.Price, "cost": out.Cost})
	s.bump(ctx)
	return out, nil
}

// DeleteProduct removes a product without history.
func (s *Service) DeleteProduct(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "catalog:product_delete", id, nil)
	s.bump(ctx)
	return nil
}

// ListCategories returns categories of kind, or all when kind is empty.
func (s *Service) ListCategories(ctx context.Context, kind string) ([]Category, error) {
	k := CategoryKind(strings.TrimSpace(kind))
	if k != "" && k != CategoryProduct && k != CategoryInventory {
		return nil, fmt.Errorf("%w: catalog: unknown category kind %q", shared.ErrInvalidInput, kind)
	}
	return s.repo.ListCategories(ctx, k)
}

// CreateCategory stores a category; kind defaults to product.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	c := Category{Name: strings.TrimSpace(in.Name), Kind: CategoryKind(in.Kind)}
	if c.Name == "" {
		return Category{}, fmt.Errorf("%w: catalog: category name required", shared.ErrInvalidInput)
	}
	if c.Kind == "" {
		c.Kind = CategoryProduct
	}
	if c.Kind != CategoryProduct && c.Kind != CategoryInventory {
		return Category{}, fmt.Errorf("%w: catalog: unknown category kind %q", shared.ErrInvalidInput, in.Kind)
	}
	return s.repo.CreateCategory(ctx, c)
}

// Ingredients returns the product's bill of materials.
func (s *Service) Ingredients(ctx context.Context, productID int64) ([]Ingredient, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.Ingredients(ctx, productID)
}

// SetIngredients replaces the bill of materials atomically.
func (s *Service) SetIngredients(ctx context.Context, productID int64, lines []IngredientInput, actorID int64) ([]Ingredient, error) {
	seen := make(map[int64]struct{}, len(lines))
	for i, line := range lines {
		if line.InventoryItemID <= 0 {
			return nil, fmt.Errorf("%w: catalog: line %d: inventory item required", shared.ErrInvalidInput, i+1)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: catalog: line %d: quantity must be > 0", shared.ErrInvalidInput, i+1)
		}
		if _, dup := seen[line.InventoryItemID]; dup {
			return nil, fmt.Errorf("%w: catalog: inventory item %d listed twice", shared.ErrInvalidInput, line.InventoryItemID)
		}
		seen[line.InventoryItemID] = struct{}{}
		lines[i].Unit = strings.TrimSpace(line.Unit)
	}
	if err := s.repo.ReplaceIngredients(ctx, productID, lines); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "catalog:bom_replace", productID, map[string]any{"lines": len(lines)})
	s.bump(ctx)
	return s.repo.Ingredients(ctx, productID)
}

func buildProduct(in ProductInput) (Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: catalog: product name required", shared.ErrInvalidInput)
	}
	if in.Price < 0 || in.Cost < 0 {
		return Product{}, fmt.Errorf("%w: catalog: price and cost must be >= 0", shared.ErrInvalidInput)
	}
	p := Product{
		Name:       name,
		Price:      in.Price,
		Cost:       in.Cost,
		Margin:     Margin(in.Price, in.Cost),
		CategoryID: in.CategoryID,
		IsActive:   true,
	}
	if in.SKU != nil {
		if sku := strings.TrimSpace(*in.SKU); sku != "" {
			p.SKU = &sku
		}
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return p, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "product", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("catalog audit", slog.Any("error", err), slog.String("action", action))
	}
}

func (s *Service) bump(ctx context.Context) {
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("catalog cache bump", slog.Any("error", err))
	}
}
