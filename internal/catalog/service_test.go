package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovenly/ovenly/internal/shared"
)

type memoryRepo struct {
	products    map[int64]Product
	categories  []Category
	ingredients map[int64][]IngredientInput
	items       map[int64]Ingredient
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:    make(map[int64]Product),
		ingredients: make(map[int64][]IngredientInput),
		items: map[int64]Ingredient{
			1: {InventoryItemID: 1, ItemName: "Flour", CostPerUnit: 2},
			2: {InventoryItemID: 2, ItemName: "Butter", CostPerUnit: 8},
		},
	}
}

func (r *memoryRepo) ListProducts(_ context.Context, _ ProductFilter) ([]Product, int, error) {
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) CreateProduct(_ context.Context, p Product) (Product, error) {
	for _, existing := range r.products {
		if p.SKU != nil && existing.SKU != nil && *existing.SKU == *p.SKU {
			return Product{}, ErrDuplicateSKU
		}
	}
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) UpdateProduct(_ context.Context, p Product) (Product, error) {
	if _, ok := r.products[p.ID]; !ok {
		return Product{}, ErrProductNotFound
	}
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) DeleteProduct(_ context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) ListCategories(_ context.Context, kind CategoryKind) ([]Category, error) {
	var out []Category
	for _, c := range r.categories {
		if kind == "" || c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateCategory(_ context.Context, c Category) (Category, error) {
	for _, existing := range r.categories {
		if existing.Name == c.Name && existing.Kind == c.Kind {
			return Category{}, ErrDuplicateCategory
		}
	}
	c.ID = int64(len(r.categories) + 1)
	r.categories = append(r.categories, c)
	return c, nil
}

func (r *memoryRepo) Ingredients(_ context.Context, productID int64) ([]Ingredient, error) {
	var out []Ingredient
	for _, line := range r.ingredients[productID] {
		item := r.items[line.InventoryItemID]
		item.ProductID = productID
		item.Quantity = line.Quantity
		item.Unit = line.Unit
		out = append(out, item)
	}
	return out, nil
}

func (r *memoryRepo) ReplaceIngredients(_ context.Context, productID int64, lines []IngredientInput) error {
	if _, ok := r.products[productID]; !ok {
		return ErrProductNotFound
	}
	for _, line := range lines {
		if _, ok := r.items[line.InventoryItemID]; !ok {
			return ErrUnknownIngredientItem
		}
	}
	r.ingredients[productID] = append([]IngredientInput(nil), lines...)
	return nil
}

func TestMargin(t *testing.T) {
	require.InDelta(t, 40.0, Margin(5, 3), 1e-9)
	require.InDelta(t, 0.0, Margin(0, 3), 1e-9)
	require.InDelta(t, -20.0, Margin(5, 6), 1e-9)
	require.InDelta(t, 33.33, Margin(3, 2), 1e-9)
	require.InDelta(t, -17900.0, Margin(0.1, 18), 1e-9)
	require.InDelta(t, float64(MinMargin), Margin(0.0001, 1e6), 1e-9)
}

func TestCreateProductDerivesMargin(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()
	sku := " CRS-01 "

	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Croissant", SKU: &sku, Price: 4, Cost: 1}, 1)
	require.NoError(t, err)
	require.Equal(t, "CRS-01", *p.SKU)
	require.InDelta(t, 75.0, p.Margin, 1e-9)
	require.True(t, p.IsActive)

	dup := "CRS-01"
	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Other", SKU: &dup, Price: 1}, 1)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "  "}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSetIngredientsValidates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Loaf", Price: 5}, 1)
	require.NoError(t, err)

	lines, err := svc.SetIngredients(ctx, p.ID, []IngredientInput{
		{InventoryItemID: 1, Quantity: 0.5, Unit: "kg"},
		{InventoryItemID: 2, Quantity: 0.25, Unit: "kg"},
	}, 1)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "Flour", lines[0].ItemName)

	cases := map[string][]IngredientInput{
		"zero quantity": {{InventoryItemID: 1, Quantity: 0}},
		"duplicate":     {{InventoryItemID: 1, Quantity: 1}, {InventoryItemID: 1, Quantity: 2}},
		"unknown item":  {{InventoryItemID: 99, Quantity: 1}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SetIngredients(ctx, p.ID, in, 1)
			require.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
	require.Len(t, repo.ingredients[p.ID], 2, "failed replacements keep the previous BOM")

	_, err = svc.SetIngredients(ctx, 404, nil, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCategories(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, CategoryInput{Name: "Breads"})
	require.NoError(t, err)
	require.Equal(t, CategoryProduct, c.Kind)
	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "Breads"})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "Dairy", Kind: "inventory"})
	require.NoError(t, err)

	inv, err := svc.ListCategories(ctx, "inventory")
	require.NoError(t, err)
	require.Len(t, inv, 1)
	_, err = svc.ListCategories(ctx, "misc")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
