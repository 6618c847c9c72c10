package entitlement

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/app/observability/metrics"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ EntitlementService = (*EntitlementServiceImpl)(nil)

// EntitlementService decides whether a user may create one more quote.
type EntitlementService interface {
	// CheckPlanLimit is read-only. It never fails open: if usage cannot be
	// read, the result is allowed=false with reason "error".
	CheckPlanLimit(ctx context.Context, userID uuid.UUID) types.EntitlementResult
}

type EntitlementServiceImpl struct {
	logger *slog.Logger
	repo   EntitlementRepo
}

func NewEntitlementService(repo EntitlementRepo, logger *slog.Logger) *EntitlementServiceImpl {
	return &EntitlementServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *EntitlementServiceImpl) CheckPlanLimit(ctx context.Context, userID uuid.UUID) types.EntitlementResult {
	l := s.logger.With(slog.String("method", "CheckPlanLimit"), slog.String("userID", userID.String()))

	plan, err := s.repo.GetActivePlan(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to read active plan, failing closed", slog.Any("error", err))
		return types.EntitlementResult{Allowed: false, Reason: "error"}
	}

	policy := types.PolicyFor(plan)
	if policy.Unlimited {
		return types.EntitlementResult{Allowed: true, Plan: plan}
	}

	var current int
	switch policy.Window {
	case types.WindowMonthly:
		current, err = s.repo.CountBudgetsInCurrentMonth(ctx, userID)
	default:
		current, err = s.repo.CountBudgetsTotal(ctx, userID)
	}
	if err != nil {
		l.ErrorContext(ctx, "Failed to read usage count, failing closed", slog.Any("error", err))
		return types.EntitlementResult{Allowed: false, Reason: "error"}
	}

	if current >= policy.Limit {
		metrics.Get().QuotaDeniedTotal.Add(ctx, 1)
		return types.EntitlementResult{
			Allowed: false,
			Reason:  "limit_reached",
			Plan:    plan,
			Limit:   policy.Limit,
			Current: current,
		}
	}

	return types.EntitlementResult{
		Allowed: true,
		Plan:    plan,
		Limit:   policy.Limit,
		Current: current,
	}
}
