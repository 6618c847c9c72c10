package budget

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

func newMockRepo(t *testing.T) (*PostgresBudgetRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return NewPostgresBudgetRepo(mockPool, slog.Default()), mockPool
}

func TestCreateBudget_AllocatesDisplayNumberInTx(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	userID := uuid.New()
	params := types.CreateBudgetParams{
		ClientName:   "Cliente",
		Items:        []types.BudgetItem{{Description: "serviço", Quantity: 2, UnitPrice: 50}},
		Layout:       "classic",
		AccentColor:  "#2563eb",
		ValidityDays: 15,
	}

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(`INSERT INTO budget_counters`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(7))
	mockPool.ExpectQuery(`INSERT INTO budgets`).
		WithArgs(userID, 7, params.ClientName, "", pgxmock.AnyArg(), 100.0,
			"classic", "#2563eb", 15).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(uuid.New(), time.Now(), time.Now()))
	mockPool.ExpectCommit()

	b, err := repo.CreateBudget(context.Background(), userID, params, 100.0, nil)

	require.NoError(t, err)
	assert.Equal(t, 7, b.DisplayNumber)
	assert.Equal(t, 100.0, b.Total)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCreateBudget_QuotaCheckedInsideTransaction(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	userID := uuid.New()
	params := types.CreateBudgetParams{
		ClientName: "Cliente",
		Items:      []types.BudgetItem{{Description: "x", Quantity: 1, UnitPrice: 1}},
	}
	guard := types.PolicyFor(types.PlanFree)

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(`SELECT count\(\*\) FROM budgets`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mockPool.ExpectRollback()

	_, err := repo.CreateBudget(context.Background(), userID, params, 1.0, &guard)

	assert.ErrorIs(t, err, types.ErrLimitReached)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCreateBudget_MonthlyWindowNarrowsCount(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	userID := uuid.New()
	params := types.CreateBudgetParams{
		ClientName:   "Cliente",
		Items:        []types.BudgetItem{{Description: "x", Quantity: 1, UnitPrice: 1}},
		Layout:       "classic",
		AccentColor:  "#2563eb",
		ValidityDays: 15,
	}
	guard := types.PolicyFor(types.PlanStarter)

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(`SELECT count\(\*\) FROM budgets WHERE user_id = \$1 AND created_at >= date_trunc`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(29))
	mockPool.ExpectQuery(`INSERT INTO budget_counters`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(42))
	mockPool.ExpectQuery(`INSERT INTO budgets`).
		WithArgs(userID, 42, params.ClientName, "", pgxmock.AnyArg(), 1.0,
			"classic", "#2563eb", 15).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(uuid.New(), time.Now(), time.Now()))
	mockPool.ExpectCommit()

	b, err := repo.CreateBudget(context.Background(), userID, params, 1.0, &guard)

	require.NoError(t, err)
	assert.Equal(t, 42, b.DisplayNumber)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestDeleteBudget_NotFound(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	userID := uuid.New()
	budgetID := uuid.New()

	mockPool.ExpectExec(`DELETE FROM budgets`).
		WithArgs(budgetID, userID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.DeleteBudget(context.Background(), userID, budgetID)

	assert.ErrorIs(t, err, types.ErrNotFound)
	require.NoError(t, mockPool.ExpectationsWereMet())
}
