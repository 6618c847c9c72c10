package budget

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

type BudgetHandler struct {
	budgetService BudgetService
	logger        *slog.Logger
}

func NewBudgetHandler(budgetService BudgetService, logger *slog.Logger) *BudgetHandler {
	return &BudgetHandler{
		budgetService: budgetService,
		logger:        logger,
	}
}

func (h *BudgetHandler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userIDStr == "" {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid user id in token")
		return uuid.Nil, false
	}
	return userID, true
}

// CreateBudget godoc
// @Summary      Save a quote
// @Description  Saves a quote, allocating the next display number. Denied with the entitlement payload when the plan quota is exhausted.
// @Tags         budgets
// @Accept       json
// @Produce      json
// @Param        request body types.CreateBudgetParams true "Quote payload"
// @Success      201 {object} types.Budget
// @Failure      422 {object} types.EntitlementResult
// @Router       /budgets [post]
func (h *BudgetHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "CreateBudget"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var params types.CreateBudgetParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		l.WarnContext(r.Context(), "invalid request body", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.budgetService.CreateBudget(r.Context(), userID, params)
	if err != nil {
		var le *LimitError
		switch {
		case errors.As(err, &le):
			api.WriteJSONResponse(w, r, http.StatusUnprocessableEntity, le.Result)
		case errors.Is(err, types.ErrValidation):
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		default:
			l.ErrorContext(r.Context(), "create budget failed", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to save quote")
		}
		return
	}
	api.WriteJSONResponse(w, r, http.StatusCreated, b)
}

// ListBudgets godoc
// @Summary      List quotes
// @Tags         budgets
// @Produce      json
// @Success      200 {array} types.Budget
// @Router       /budgets [get]
func (h *BudgetHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "ListBudgets"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	budgets, err := h.budgetService.ListBudgets(r.Context(), userID)
	if err != nil {
		l.ErrorContext(r.Context(), "list budgets failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to list quotes")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, budgets)
}

// GetBudget godoc
// @Summary      Fetch one quote
// @Tags         budgets
// @Produce      json
// @Param        id path string true "Quote ID"
// @Success      200 {object} types.Budget
// @Failure      404 {object} types.Response
// @Router       /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "GetBudget"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	budgetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid quote id")
		return
	}

	b, err := h.budgetService.GetBudget(r.Context(), userID, budgetID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "quote not found")
			return
		}
		l.ErrorContext(r.Context(), "get budget failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to fetch quote")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, b)
}

// UpdateBudget godoc
// @Summary      Update a quote
// @Tags         budgets
// @Accept       json
// @Produce      json
// @Param        id path string true "Quote ID"
// @Param        request body types.CreateBudgetParams true "Quote payload"
// @Success      200 {object} types.Budget
// @Router       /budgets/{id} [put]
func (h *BudgetHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "UpdateBudget"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	budgetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid quote id")
		return
	}

	var params types.CreateBudgetParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.budgetService.UpdateBudget(r.Context(), userID, budgetID, params)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrValidation):
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, types.ErrNotFound):
			api.ErrorResponse(w, r, http.StatusNotFound, "quote not found")
		default:
			l.ErrorContext(r.Context(), "update budget failed", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to update quote")
		}
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, b)
}

// DeleteBudget godoc
// @Summary      Delete a quote
// @Tags         budgets
// @Param        id path string true "Quote ID"
// @Success      204 "No Content"
// @Router       /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "DeleteBudget"))

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	budgetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid quote id")
		return
	}

	if err := h.budgetService.DeleteBudget(r.Context(), userID, budgetID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "quote not found")
			return
		}
		l.ErrorContext(r.Context(), "delete budget failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to delete quote")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
