package budget

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

type MockBudgetRepo struct {
	mock.Mock
}

func (m *MockBudgetRepo) CreateBudget(ctx context.Context, userID uuid.UUID, params types.CreateBudgetParams, total float64, guard *types.PlanPolicy) (*types.Budget, error) {
	args := m.Called(ctx, userID, params, total, guard)
	b, _ := args.Get(0).(*types.Budget)
	return b, args.Error(1)
}

func (m *MockBudgetRepo) GetBudget(ctx context.Context, userID, budgetID uuid.UUID) (*types.Budget, error) {
	args := m.Called(ctx, userID, budgetID)
	b, _ := args.Get(0).(*types.Budget)
	return b, args.Error(1)
}

func (m *MockBudgetRepo) ListBudgets(ctx context.Context, userID uuid.UUID) ([]types.Budget, error) {
	args := m.Called(ctx, userID)
	bs, _ := args.Get(0).([]types.Budget)
	return bs, args.Error(1)
}

func (m *MockBudgetRepo) UpdateBudget(ctx context.Context, userID, budgetID uuid.UUID, params types.CreateBudgetParams, total float64) error {
	args := m.Called(ctx, userID, budgetID, params, total)
	return args.Error(0)
}

func (m *MockBudgetRepo) DeleteBudget(ctx context.Context, userID, budgetID uuid.UUID) error {
	args := m.Called(ctx, userID, budgetID)
	return args.Error(0)
}

type fakeEntitlement struct {
	result types.EntitlementResult
	calls  int
}

func (f *fakeEntitlement) CheckPlanLimit(ctx context.Context, userID uuid.UUID) types.EntitlementResult {
	f.calls++
	return f.result
}

var testLogger = slog.New(slog.DiscardHandler)

func TestCreateBudget(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	params := types.CreateBudgetParams{
		ClientName: "Oficina do Zé",
		Items: []types.BudgetItem{
			{Description: "Troca de óleo", Quantity: 1, UnitPrice: 120},
			{Description: "Filtro", Quantity: 2, UnitPrice: 35.5},
		},
	}

	t.Run("Success recomputes total and passes plan guard", func(t *testing.T) {
		mockRepo := new(MockBudgetRepo)
		ent := &fakeEntitlement{result: types.EntitlementResult{Allowed: true, Plan: types.PlanFree}}
		svc := NewBudgetService(mockRepo, ent, testLogger)

		freePolicy := types.PolicyFor(types.PlanFree)
		mockRepo.On("CreateBudget", ctx, userID, mock.AnythingOfType("types.CreateBudgetParams"), 191.0, &freePolicy).
			Return(&types.Budget{ID: uuid.New(), UserID: userID, DisplayNumber: 1, Total: 191.0}, nil).Once()

		b, err := svc.CreateBudget(ctx, userID, params)

		require.NoError(t, err)
		assert.Equal(t, 191.0, b.Total)
		assert.Equal(t, 1, ent.calls)
		mockRepo.AssertExpectations(t)
	})

	t.Run("DeniedByAdvisoryCheck never reaches the repo", func(t *testing.T) {
		mockRepo := new(MockBudgetRepo)
		ent := &fakeEntitlement{result: types.EntitlementResult{
			Allowed: false, Reason: "limit_reached", Plan: types.PlanFree, Limit: 3, Current: 3,
		}}
		svc := NewBudgetService(mockRepo, ent, testLogger)

		_, err := svc.CreateBudget(ctx, userID, params)

		require.Error(t, err)
		var le *LimitError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, 3, le.Result.Limit)
		assert.True(t, errors.Is(err, types.ErrLimitReached))
		mockRepo.AssertNotCalled(t, "CreateBudget")
	})

	t.Run("DeniedInTransaction maps to LimitError", func(t *testing.T) {
		mockRepo := new(MockBudgetRepo)
		ent := &fakeEntitlement{result: types.EntitlementResult{Allowed: true, Plan: types.PlanStarter}}
		svc := NewBudgetService(mockRepo, ent, testLogger)

		mockRepo.On("CreateBudget", ctx, userID, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, types.ErrLimitReached).Once()

		_, err := svc.CreateBudget(ctx, userID, params)

		var le *LimitError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "limit_reached", le.Result.Reason)
		assert.Equal(t, types.PlanStarter, le.Result.Plan)
		mockRepo.AssertExpectations(t)
	})

	t.Run("MissingClientName rejected before any check", func(t *testing.T) {
		mockRepo := new(MockBudgetRepo)
		ent := &fakeEntitlement{result: types.EntitlementResult{Allowed: true}}
		svc := NewBudgetService(mockRepo, ent, testLogger)

		_, err := svc.CreateBudget(ctx, userID, types.CreateBudgetParams{
			Items: []types.BudgetItem{{Description: "x", Quantity: 1, UnitPrice: 1}},
		})

		assert.ErrorIs(t, err, types.ErrValidation)
		assert.Equal(t, 0, ent.calls)
	})

	t.Run("NegativeQuantity rejected", func(t *testing.T) {
		mockRepo := new(MockBudgetRepo)
		ent := &fakeEntitlement{result: types.EntitlementResult{Allowed: true}}
		svc := NewBudgetService(mockRepo, ent, testLogger)

		_, err := svc.CreateBudget(ctx, userID, types.CreateBudgetParams{
			ClientName: "A",
			Items:      []types.BudgetItem{{Description: "x", Quantity: -1, UnitPrice: 1}},
		})

		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestUpdateBudget(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	budgetID := uuid.New()
	params := types.CreateBudgetParams{
		ClientName: "Cliente",
		Items:      []types.BudgetItem{{Description: "item", Quantity: 3, UnitPrice: 10}},
	}

	t.Run("Success does not consume quota", func(t *testing.T) {
		mockRepo := new(MockBudgetRepo)
		ent := &fakeEntitlement{result: types.EntitlementResult{Allowed: false, Reason: "limit_reached"}}
		svc := NewBudgetService(mockRepo, ent, testLogger)

		mockRepo.On("UpdateBudget", ctx, userID, budgetID, mock.Anything, 30.0).Return(nil).Once()
		mockRepo.On("GetBudget", ctx, userID, budgetID).
			Return(&types.Budget{ID: budgetID, Total: 30.0}, nil).Once()

		b, err := svc.UpdateBudget(ctx, userID, budgetID, params)

		require.NoError(t, err)
		assert.Equal(t, 30.0, b.Total)
		assert.Equal(t, 0, ent.calls)
		mockRepo.AssertExpectations(t)
	})

	t.Run("NotFound propagates", func(t *testing.T) {
		mockRepo := new(MockBudgetRepo)
		svc := NewBudgetService(mockRepo, &fakeEntitlement{}, testLogger)

		mockRepo.On("UpdateBudget", ctx, userID, budgetID, mock.Anything, mock.Anything).
			Return(types.ErrNotFound).Once()

		_, err := svc.UpdateBudget(ctx, userID, budgetID, params)

		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}
