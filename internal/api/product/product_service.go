package product

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ ProductService = (*ProductServiceImpl)(nil)

type ProductService interface {
	ListProducts(ctx context.Context, userID uuid.UUID) ([]types.Product, error)
	CreateProduct(ctx context.Context, userID uuid.UUID, params types.CreateProductParams) (*types.Product, error)
	UpdateProduct(ctx context.Context, userID, productID uuid.UUID, params types.CreateProductParams) error
	DeleteProduct(ctx context.Context, userID, productID uuid.UUID) error
}

type ProductServiceImpl struct {
	logger *slog.Logger
	repo   ProductRepo
}

func NewProductService(repo ProductRepo, logger *slog.Logger) *ProductServiceImpl {
	return &ProductServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func validateParams(params types.CreateProductParams) error {
	if params.Name == "" {
		return fmt.Errorf("product name is required: %w", types.ErrValidation)
	}
	if params.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative: %w", types.ErrValidation)
	}
	if params.Category != types.CategoryService && params.Category != types.CategoryProduct {
		return fmt.Errorf("category must be 'service' or 'product': %w", types.ErrValidation)
	}
	return nil
}

func (s *ProductServiceImpl) ListProducts(ctx context.Context, userID uuid.UUID) ([]types.Product, error) {
	return s.repo.ListProducts(ctx, userID)
}

func (s *ProductServiceImpl) CreateProduct(ctx context.Context, userID uuid.UUID, params types.CreateProductParams) (*types.Product, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	return s.repo.CreateProduct(ctx, userID, params)
}

func (s *ProductServiceImpl) UpdateProduct(ctx context.Context, userID, productID uuid.UUID, params types.CreateProductParams) error {
	if err := validateParams(params); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, userID, productID, params)
}

func (s *ProductServiceImpl) DeleteProduct(ctx context.Context, userID, productID uuid.UUID) error {
	return s.repo.DeleteProduct(ctx, userID, productID)
}
