package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ultraorca/ultraorca-api/app/observability/metrics"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

type MockEntitlementRepo struct {
	mock.Mock
}

func (m *MockEntitlementRepo) GetActivePlan(ctx context.Context, userID uuid.UUID) (types.Plan, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(types.Plan), args.Error(1)
}

func (m *MockEntitlementRepo) CountBudgetsTotal(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockEntitlementRepo) CountBudgetsInCurrentMonth(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	m.Run()
}

func TestCheckPlanLimit_FreePlan(t *testing.T) {
	userID := uuid.New()
	ctx := context.Background()

	cases := []struct {
		name    string
		count   int
		allowed bool
	}{
		{"ZeroQuotes", 0, true},
		{"TwoQuotes", 2, true},
		{"AtLimit", 3, false},
		{"OverLimit", 4, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(MockEntitlementRepo)
			repo.On("GetActivePlan", ctx, userID).Return(types.PlanFree, nil).Once()
			repo.On("CountBudgetsTotal", ctx, userID).Return(tc.count, nil).Once()

			service := NewEntitlementService(repo, slog.Default())
			result := service.CheckPlanLimit(ctx, userID)

			assert.Equal(t, tc.allowed, result.Allowed)
			if !tc.allowed {
				assert.Equal(t, "limit_reached", result.Reason)
				assert.Equal(t, types.PlanFree, result.Plan)
				assert.Equal(t, 3, result.Limit)
				assert.Equal(t, tc.count, result.Current)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestCheckPlanLimit_StarterCountsCurrentMonthOnly(t *testing.T) {
	userID := uuid.New()
	ctx := context.Background()

	t.Run("HeavyPastUsageStillAllowed", func(t *testing.T) {
		repo := new(MockEntitlementRepo)
		repo.On("GetActivePlan", ctx, userID).Return(types.PlanStarter, nil).Once()
		// 50 quotes last month are invisible to the monthly window.
		repo.On("CountBudgetsInCurrentMonth", ctx, userID).Return(29, nil).Once()

		service := NewEntitlementService(repo, slog.Default())
		result := service.CheckPlanLimit(ctx, userID)

		assert.True(t, result.Allowed)
		repo.AssertExpectations(t)
	})

	t.Run("AtMonthlyLimit", func(t *testing.T) {
		repo := new(MockEntitlementRepo)
		repo.On("GetActivePlan", ctx, userID).Return(types.PlanStarter, nil).Once()
		repo.On("CountBudgetsInCurrentMonth", ctx, userID).Return(30, nil).Once()

		service := NewEntitlementService(repo, slog.Default())
		result := service.CheckPlanLimit(ctx, userID)

		assert.False(t, result.Allowed)
		assert.Equal(t, "limit_reached", result.Reason)
		assert.Equal(t, 30, result.Limit)
		assert.Equal(t, 30, result.Current)
		repo.AssertExpectations(t)
	})
}

func TestCheckPlanLimit_PaidPlansUnlimited(t *testing.T) {
	userID := uuid.New()
	ctx := context.Background()

	for _, plan := range []types.Plan{types.PlanPro, types.PlanAnnual} {
		t.Run(string(plan), func(t *testing.T) {
			repo := new(MockEntitlementRepo)
			repo.On("GetActivePlan", ctx, userID).Return(plan, nil).Once()
			// No counting calls expected for unlimited plans.

			service := NewEntitlementService(repo, slog.Default())
			result := service.CheckPlanLimit(ctx, userID)

			assert.True(t, result.Allowed)
			assert.Equal(t, plan, result.Plan)
			repo.AssertNotCalled(t, "CountBudgetsTotal", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "CountBudgetsInCurrentMonth", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckPlanLimit_FailsClosed(t *testing.T) {
	userID := uuid.New()
	ctx := context.Background()

	t.Run("PlanLookupError", func(t *testing.T) {
		repo := new(MockEntitlementRepo)
		repo.On("GetActivePlan", ctx, userID).Return(types.Plan(""), errors.New("connection refused")).Once()

		service := NewEntitlementService(repo, slog.Default())
		result := service.CheckPlanLimit(ctx, userID)

		assert.False(t, result.Allowed)
		assert.Equal(t, "error", result.Reason)
	})

	t.Run("UsageCountError", func(t *testing.T) {
		repo := new(MockEntitlementRepo)
		repo.On("GetActivePlan", ctx, userID).Return(types.PlanFree, nil).Once()
		repo.On("CountBudgetsTotal", ctx, userID).Return(0, errors.New("connection reset")).Once()

		service := NewEntitlementService(repo, slog.Default())
		result := service.CheckPlanLimit(ctx, userID)

		assert.False(t, result.Allowed)
		assert.Equal(t, "error", result.Reason)
	})
}
