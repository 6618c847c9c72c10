package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ ProductRepo = (*PostgresProductRepo)(nil)

// ProductRepo defines the contract for catalog persistence. Every method is
// scoped to the owning user; a product id from another account behaves as
// not found.
type ProductRepo interface {
	ListProducts(ctx context.Context, userID uuid.UUID) ([]types.Product, error)
	CreateProduct(ctx context.Context, userID uuid.UUID, params types.CreateProductParams) (*types.Product, error)
	UpdateProduct(ctx context.Context, userID, productID uuid.UUID, params types.CreateProductParams) error
	DeleteProduct(ctx context.Context, userID, productID uuid.UUID) error
}

type PostgresProductRepo struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewPostgresProductRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresProductRepo {
	return &PostgresProductRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresProductRepo) ListProducts(ctx context.Context, userID uuid.UUID) ([]types.Product, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT id, user_id, name, unit_price, category, created_at
         FROM products WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list products: query failed: %w", err)
	}
	defer rows.Close()

	products := []types.Product{}
	for rows.Next() {
		var p types.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.UnitPrice, &p.Category, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("list products: scan failed: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *PostgresProductRepo) CreateProduct(ctx context.Context, userID uuid.UUID, params types.CreateProductParams) (*types.Product, error) {
	var p types.Product
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO products (user_id, name, unit_price, category)
         VALUES ($1, $2, $3, $4)
         RETURNING id, user_id, name, unit_price, category, created_at`,
		userID, params.Name, params.UnitPrice, params.Category).Scan(
		&p.ID, &p.UserID, &p.Name, &p.UnitPrice, &p.Category, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create product: insert failed: %w", err)
	}
	return &p, nil
}

func (r *PostgresProductRepo) UpdateProduct(ctx context.Context, userID, productID uuid.UUID, params types.CreateProductParams) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE products SET name = $1, unit_price = $2, category = $3
         WHERE id = $4 AND user_id = $5`,
		params.Name, params.UnitPrice, params.Category, productID, userID)
	if err != nil {
		return fmt.Errorf("update product: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresProductRepo) DeleteProduct(ctx context.Context, userID, productID uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx,
		`DELETE FROM products WHERE id = $1 AND user_id = $2`, productID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ErrNotFound
		}
		return fmt.Errorf("delete product: db delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}
