package mysql

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	domain "github.com/elegance-boutique/api/internal/domain"
	"github.com/elegance-boutique/api/internal/repositories"
)

type productRepository struct {
	db *sqlx.DB
}

type productRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Category    string    `db:"category"`
	PriceCents  int64     `db:"price_cents"`
	StockQty    int       `db:"stock_qty"`
	ImageURL    string    `db:"image_url"`
	Active      bool      `db:"active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		PriceCents:  r.PriceCents,
		StockQty:    r.StockQty,
		ImageURL:    r.ImageURL,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func productRowFromDomain(p domain.Product) productRow {
	return productRow{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		PriceCents:  p.PriceCents,
		StockQty:    p.StockQty,
		ImageURL:    p.ImageURL,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

const productColumns = "id, name, description, category, price_cents, stock_qty, image_url, active, created_at, updated_at"

func (r *productRepository) Insert(ctx context.Context, product domain.Product) error {
	const query = `
		INSERT INTO products (id, name, description, category, price_cents, stock_qty, image_url, active, created_at, updated_at)
		VALUES (:id, :name, :description, :category, :price_cents, :stock_qty, :image_url, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, chooseExecer(ctx, r.db), query, productRowFromDomain(product)); err != nil {
		return wrapError(err, "insert product")
	}
	return nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) error {
	const query = `
		UPDATE products
		SET name = :name, description = :description, category = :category,
		    price_cents = :price_cents, image_url = :image_url, active = :active,
		    updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, chooseExecer(ctx, r.db), query, productRowFromDomain(product))
	if err != nil {
		return wrapError(err, "update product")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		if _, findErr := r.FindByID(ctx, product.ID); findErr != nil {
			return findErr
		}
	}
	return nil
}

func (r *productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var row productRow
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	if err := chooseExecer(ctx, r.db).GetContext(ctx, &row, query, productID); err != nil {
		return domain.Product{}, wrapError(err, "find product")
	}
	return row.toDomain(), nil
}

func (r *productRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if len(productIDs) == 0 {
		return map[string]domain.Product{}, nil
	}
	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", productIDs)
	if err != nil {
		return nil, wrapError(err, "find products")
	}
	ex := chooseExecer(ctx, r.db)
	query = ex.Rebind(query)

	var rows []productRow
	if err := ex.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapError(err, "find products")
	}
	found := make(map[string]domain.Product, len(rows))
	for _, row := range rows {
		found[row.ID] = row.toDomain()
	}
	return found, nil
}

func (r *productRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	var (
		clauses []string
		args    []any
	)
	if !filter.IncludeHidden {
		clauses = append(clauses, "active = TRUE")
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, category)
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name ASC, id ASC"
	if filter.Pagination.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Pagination.Limit)
		if filter.Pagination.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Pagination.Offset)
		}
	}

	var rows []productRow
	if err := chooseExecer(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapError(err, "list products")
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toDomain())
	}
	return products, nil
}

// ReserveStock is the single decrement path for sellable stock. The guard in
// the WHERE clause makes the check-and-decrement atomic: zero affected rows
// means another buyer got there first or the product vanished.
func (r *productRepository) ReserveStock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return conflictError("reserve stock: non-positive quantity")
	}
	const query = `
		UPDATE products
		SET stock_qty = stock_qty - ?, updated_at = UTC_TIMESTAMP()
		WHERE id = ? AND stock_qty >= ?`
	res, err := chooseExecer(ctx, r.db).ExecContext(ctx, query, qty, productID, qty)
	if err != nil {
		return wrapError(err, "reserve stock")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrapError(err, "reserve stock")
	}
	if rows == 0 {
		if _, findErr := r.FindByID(ctx, productID); findErr != nil {
			return findErr
		}
		return conflictError("reserve stock: insufficient quantity")
	}
	return nil
}

func (r *productRepository) ReleaseStock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	const query = `
		UPDATE products
		SET stock_qty = stock_qty + ?, updated_at = UTC_TIMESTAMP()
		WHERE id = ?`
	res, err := chooseExecer(ctx, r.db).ExecContext(ctx, query, qty, productID)
	if err != nil {
		return wrapError(err, "release stock")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return notFoundError("release stock")
	}
	return nil
}

func (r *productRepository) SetStock(ctx context.Context, productID string, qty int, now time.Time) error {
	if qty < 0 {
		return errors.New("mysql: set stock: negative quantity")
	}
	const query = `UPDATE products SET stock_qty = ?, updated_at = ? WHERE id = ?`
	res, err := chooseExecer(ctx, r.db).ExecContext(ctx, query, qty, now.UTC(), productID)
	if err != nil {
		return wrapError(err, "set stock")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return notFoundError("set stock")
	}
	return nil
}
