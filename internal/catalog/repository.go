package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovenly/ovenly/internal/platform/db"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, name, sku, price, cost, margin, category_id, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Cost, &p.Margin, &p.CategoryID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// ListProducts returns a page of products plus the total count.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args)))
	}
	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.PerPage
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM products%s ORDER BY name, id LIMIT $%d OFFSET $%d`, productColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// GetProduct loads a product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// CreateProduct inserts a product.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	out, err := scanProduct(r.pool.QueryRow(ctx, `INSERT INTO products (name, sku, price, cost, margin, category_id, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+productColumns, p.Name, p.SKU, p.Price, p.Cost, p.Margin, p.CategoryID, p.IsActive))
	return out, mapProductErr(err)
}

// UpdateProduct rewrites a product.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	out, err := scanProduct(r.pool.QueryRow(ctx, `UPDATE products
SET name = $2, sku = $3, price = $4, cost = $5, margin = $6, category_id = $7, is_active = $8, updated_at = NOW()
WHERE id = $1
RETURNING `+productColumns, p.ID, p.Name, p.SKU, p.Price, p.Cost, p.Margin, p.CategoryID, p.IsActive))
	return out, mapProductErr(err)
}

// UpdateCostAndMargin stores a recomputed cost.
func (r *Repository) UpdateCostAndMargin(ctx context.Context, id int64, cost, margin float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET cost = $2, margin = $3, updated_at = NOW() WHERE id = $1`, id, cost, margin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListProductIDs returns every product id that has a bill of materials.
func (r *Repository) ListProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_id FROM product_ingredients ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteProduct removes a product and its BOM.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrProductInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListCategories returns categories, optionally filtered by kind.
func (r *Repository) ListCategories(ctx context.Context, kind CategoryKind) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, kind FROM categories WHERE ($1 = '' OR kind = $1) ORDER BY kind, name`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Category, 0)
	for rows.Next() {
		var c Category
		var k string
		if err := rows.Scan(&c.ID, &c.Name, &k); err != nil {
			return nil, err
		}
		c.Kind = CategoryKind(k)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (Category, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, kind) VALUES ($1, $2) RETURNING id`, c.Name, string(c.Kind)).Scan(&c.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Category{}, ErrDuplicateCategory
		}
		return Category{}, err
	}
	return c, nil
}

// Ingredients returns the BOM of a product joined to current item cost.
func (r *Repository) Ingredients(ctx context.Context, productID int64) ([]Ingredient, error) {
	return QueryIngredients(ctx, r.pool, productID)
}

// QueryIngredients runs the BOM query on any connection, including an open transaction.
func QueryIngredients(ctx context.Context, q db.DBTX, productID int64) ([]Ingredient, error) {
	rows, err := q.Query(ctx, `SELECT pi.product_id, pi.inventory_item_id, pi.quantity, pi.unit, i.name, i.cost_per_unit, i.current_stock
FROM product_ingredients pi
JOIN inventory_items i ON i.id = pi.inventory_item_id
WHERE pi.product_id = $1
ORDER BY pi.inventory_item_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Ingredient, 0)
	for rows.Next() {
		var ing Ingredient
		if err := rows.Scan(&ing.ProductID, &ing.InventoryItemID, &ing.Quantity, &ing.Unit, &ing.ItemName, &ing.CostPerUnit, &ing.CurrentStock); err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// ReplaceIngredients swaps the BOM of a product inside one transaction.
func (r *Repository) ReplaceIngredients(ctx context.Context, productID int64, lines []IngredientInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrProductNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM product_ingredients WHERE product_id = $1`, productID); err != nil {
			return err
		}
		for _, line := range lines {
			_, err := tx.Exec(ctx, `INSERT INTO product_ingredients (product_id, inventory_item_id, quantity, unit) VALUES ($1, $2, $3, $4)`,
				productID, line.InventoryItemID, line.Quantity, line.Unit)
			if err != nil {
				if db.IsForeignKeyViolation(err) {
					return ErrUnknownIngredientItem
				}
				return err
			}
		}
		return nil
	})
}

func mapProductErr(err error) error {
	if err != nil && db.IsUniqueViolation(err) {
		return ErrDuplicateSKU
	}
	return err
}
