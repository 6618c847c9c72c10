package product

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/internal/api"
	"github.com/ultraorca/ultraorca-api/internal/api/auth"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	ListProducts(w http.ResponseWriter, r *http.Request)
	CreateProduct(w http.ResponseWriter, r *http.Request)
	UpdateProduct(w http.ResponseWriter, r *http.Request)
	DeleteProduct(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	productService ProductService
	logger         *slog.Logger
}

func NewHandlerImpl(productService ProductService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		productService: productService,
		logger:         logger,
	}
}

// ListProducts godoc
// @Summary      List Catalog
// @Tags         Products
// @Produce      json
// @Success      200 {array} types.Product
// @Security     BearerAuth
// @Router       /products [get]
func (h *HandlerImpl) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	products, err := h.productService.ListProducts(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list products", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to list products")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, products)
}

// CreateProduct godoc
// @Summary      Create Catalog Item
// @Tags         Products
// @Accept       json
// @Produce      json
// @Param        product body types.CreateProductParams true "Product"
// @Success      201 {object} types.Product
// @Security     BearerAuth
// @Router       /products [post]
func (h *HandlerImpl) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var params types.CreateProductParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.productService.CreateProduct(ctx, userID, params)
	if err != nil {
		if errors.Is(err, types.ErrValidation) {
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(ctx, "Failed to create product", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to create product")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusCreated, product)
}

// UpdateProduct godoc
// @Summary      Update Catalog Item
// @Tags         Products
// @Accept       json
// @Param        id path string true "Product ID"
// @Security     BearerAuth
// @Router       /products/{id} [put]
func (h *HandlerImpl) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var params types.CreateProductParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.productService.UpdateProduct(ctx, userID, productID, params); err != nil {
		switch {
		case errors.Is(err, types.ErrValidation):
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, types.ErrNotFound):
			api.ErrorResponse(w, r, http.StatusNotFound, "Product not found")
		default:
			h.logger.ErrorContext(ctx, "Failed to update product", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to update product")
		}
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, types.Response{Success: true})
}

// DeleteProduct godoc
// @Summary      Delete Catalog Item
// @Tags         Products
// @Param        id path string true "Product ID"
// @Security     BearerAuth
// @Router       /products/{id} [delete]
func (h *HandlerImpl) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid product ID")
		return
	}

	if err := h.productService.DeleteProduct(ctx, userID, productID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Product not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to delete product", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userIDStr == "" {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}
