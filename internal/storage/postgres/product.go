package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loja-api/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, stock, category_id, image`

	getProductSQL    = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
	productStockSQL  = `SELECT name, stock FROM products WHERE id = $1`

	setStockSQL = `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1
		RETURNING ` + productColumns

	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2 RETURNING stock`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns product.ErrNotFound when no product has the given id.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

// GetByIDs returns the products matching ids. Missing ids are omitted.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	return products, nil
}

// Exists reports whether a product with id exists.
func (r *ProductRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, productExistsSQL, id).Scan(&ok); err != nil {
		return false, errors.Wrapf(err, "check product %d", id)
	}
	return ok, nil
}

// SetStock overwrites the stock of product id.
func (r *ProductRepository) SetStock(ctx context.Context, id int64, stock int) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, setStockSQL, id, stock)
	if err != nil {
		return nil, errors.Wrapf(err, "set stock of product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "set stock of product %d", id)
	}
	return &p, nil
}

// decrementStock takes qty units of productID only if they are available.
// When they are not, the in-transaction stock is reported.
func decrementStock(ctx context.Context, q querier, productID int64, qty int) error {
	var left int
	err := q.QueryRow(ctx, decrementStockSQL, productID, qty).Scan(&left)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(err, "decrement stock of product %d", productID)
	}

	var (
		name      string
		available int
	)
	if err := q.QueryRow(ctx, productStockSQL, productID).Scan(&name, &available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &product.NotFoundError{ProductID: productID}
		}
		return errors.Wrapf(err, "read stock of product %d", productID)
	}
	return &product.InsufficientStockError{
		ProductID: productID,
		Name:      name,
		Requested: qty,
		Available: available,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CategoryID, &p.Image)
	return p, err
}
