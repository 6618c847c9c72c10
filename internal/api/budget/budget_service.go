package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

// LimitError carries the entitlement payload across the service boundary so
// the handler can render it without re-querying.
type LimitError struct {
	Result types.EntitlementResult
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("plan %s limit of %d reached (%d used)", e.Result.Plan, e.Result.Limit, e.Result.Current)
}

func (e *LimitError) Unwrap() error { return types.ErrLimitReached }

// EntitlementChecker is the advisory quota check consulted before opening the
// insert transaction.
type EntitlementChecker interface {
	CheckPlanLimit(ctx context.Context, userID uuid.UUID) types.EntitlementResult
}

var _ BudgetService = (*BudgetServiceImpl)(nil)

type BudgetService interface {
	CreateBudget(ctx context.Context, userID uuid.UUID, params types.CreateBudgetParams) (*types.Budget, error)
	GetBudget(ctx context.Context, userID, budgetID uuid.UUID) (*types.Budget, error)
	ListBudgets(ctx context.Context, userID uuid.UUID) ([]types.Budget, error)
	UpdateBudget(ctx context.Context, userID, budgetID uuid.UUID, params types.CreateBudgetParams) (*types.Budget, error)
	DeleteBudget(ctx context.Context, userID, budgetID uuid.UUID) error
}

type BudgetServiceImpl struct {
	logger      *slog.Logger
	repo        BudgetRepo
	entitlement EntitlementChecker
}

func NewBudgetService(repo BudgetRepo, entitlement EntitlementChecker, logger *slog.Logger) *BudgetServiceImpl {
	return &BudgetServiceImpl{
		logger:      logger,
		repo:        repo,
		entitlement: entitlement,
	}
}

func validateParams(params types.CreateBudgetParams) error {
	if params.ClientName == "" {
		return fmt.Errorf("client_name is required: %w", types.ErrValidation)
	}
	if len(params.Items) == 0 {
		return fmt.Errorf("at least one item is required: %w", types.ErrValidation)
	}
	for i, it := range params.Items {
		if it.Quantity < 0 {
			return fmt.Errorf("item %d: quantity must not be negative: %w", i, types.ErrValidation)
		}
		if it.UnitPrice < 0 {
			return fmt.Errorf("item %d: unit price must not be negative: %w", i, types.ErrValidation)
		}
	}
	return nil
}

func applyDefaults(params *types.CreateBudgetParams) {
	if params.Layout == "" {
		params.Layout = "classic"
	}
	if params.AccentColor == "" {
		params.AccentColor = "#2563eb"
	}
	if params.ValidityDays <= 0 {
		params.ValidityDays = 15
	}
}

func (s *BudgetServiceImpl) CreateBudget(ctx context.Context, userID uuid.UUID, params types.CreateBudgetParams) (*types.Budget, error) {
	l := s.logger.With(slog.String("service", "CreateBudget"), slog.String("userID", userID.String()))

	if err := validateParams(params); err != nil {
		return nil, err
	}
	applyDefaults(&params)

	res := s.entitlement.CheckPlanLimit(ctx, userID)
	if !res.Allowed {
		l.InfoContext(ctx, "budget creation denied", slog.String("reason", res.Reason))
		return nil, &LimitError{Result: res}
	}

	// The advisory result above can go stale under concurrency; the repo
	// re-checks the same policy inside the insert transaction.
	policy := types.PolicyFor(res.Plan)
	b, err := s.repo.CreateBudget(ctx, userID, params, params.Total(), &policy)
	if err != nil {
		if lr := asLimitError(err, res); lr != nil {
			l.InfoContext(ctx, "budget creation denied in transaction")
			return nil, lr
		}
		l.ErrorContext(ctx, "failed to create budget", slog.Any("error", err))
		return nil, err
	}
	return b, nil
}

func asLimitError(err error, res types.EntitlementResult) *LimitError {
	if err == nil {
		return nil
	}
	if !errors.Is(err, types.ErrLimitReached) {
		return nil
	}
	res.Allowed = false
	res.Reason = "limit_reached"
	return &LimitError{Result: res}
}

func (s *BudgetServiceImpl) GetBudget(ctx context.Context, userID, budgetID uuid.UUID) (*types.Budget, error) {
	return s.repo.GetBudget(ctx, userID, budgetID)
}

func (s *BudgetServiceImpl) ListBudgets(ctx context.Context, userID uuid.UUID) ([]types.Budget, error) {
	return s.repo.ListBudgets(ctx, userID)
}

func (s *BudgetServiceImpl) UpdateBudget(ctx context.Context, userID, budgetID uuid.UUID, params types.CreateBudgetParams) (*types.Budget, error) {
	l := s.logger.With(slog.String("service", "UpdateBudget"), slog.String("budgetID", budgetID.String()))

	if err := validateParams(params); err != nil {
		return nil, err
	}
	applyDefaults(&params)

	// Editing an existing quote does not consume quota.
	if err := s.repo.UpdateBudget(ctx, userID, budgetID, params, params.Total()); err != nil {
		l.ErrorContext(ctx, "failed to update budget", slog.Any("error", err))
		return nil, err
	}
	return s.repo.GetBudget(ctx, userID, budgetID)
}

func (s *BudgetServiceImpl) DeleteBudget(ctx context.Context, userID, budgetID uuid.UUID) error {
	return s.repo.DeleteBudget(ctx, userID, budgetID)
}
