package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

// PgxPool is the subset of pgxpool.Pool the repository needs. Narrowed so
// tests can substitute pgxmock.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ BudgetRepo = (*PostgresBudgetRepo)(nil)

// BudgetRepo defines the contract for quote persistence.
type BudgetRepo interface {
	// CreateBudget inserts a quote. The display number is allocated from an
	// atomic per-user counter inside the same transaction, and when guard is
	// non-nil the usage count is re-checked there too, so two concurrent
	// saves near the limit cannot both slip through.
	CreateBudget(ctx context.Context, userID uuid.UUID, params types.CreateBudgetParams, total float64, guard *types.PlanPolicy) (*types.Budget, error)
	GetBudget(ctx context.Context, userID, budgetID uuid.UUID) (*types.Budget, error)
	ListBudgets(ctx context.Context, userID uuid.UUID) ([]types.Budget, error)
	UpdateBudget(ctx context.Context, userID, budgetID uuid.UUID, params types.CreateBudgetParams, total float64) error
	DeleteBudget(ctx context.Context, userID, budgetID uuid.UUID) error
}

type PostgresBudgetRepo struct {
	logger *slog.Logger
	db     PgxPool
}

func NewPostgresBudgetRepo(db PgxPool, logger *slog.Logger) *PostgresBudgetRepo {
	return &PostgresBudgetRepo{
		logger: logger,
		db:     db,
	}
}

const allocDisplayNumberSQL = `
	INSERT INTO budget_counters (user_id, seq) VALUES ($1, 1)
	ON CONFLICT (user_id) DO UPDATE SET seq = budget_counters.seq + 1
	RETURNING seq`

func (r *PostgresBudgetRepo) CreateBudget(ctx context.Context, userID uuid.UUID, params types.CreateBudgetParams, total float64, guard *types.PlanPolicy) (*types.Budget, error) {
	ctx, span := otel.Tracer("BudgetRepo").Start(ctx, "CreateBudget", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "budgets"),
	))
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create budget: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Authoritative quota re-check, as close to the insert as the store
	// allows. The advisory client-side check may be stale by now.
	if guard != nil && !guard.Unlimited {
		var current int
		countSQL := `SELECT count(*) FROM budgets WHERE user_id = $1`
		if guard.Window == types.WindowMonthly {
			countSQL += ` AND created_at >= date_trunc('month', now())`
		}
		if err := tx.QueryRow(ctx, countSQL, userID).Scan(&current); err != nil {
			return nil, fmt.Errorf("create budget: usage count failed: %w", err)
		}
		if current >= guard.Limit {
			return nil, fmt.Errorf("quota of %d reached (%d used): %w", guard.Limit, current, types.ErrLimitReached)
		}
	}

	var displayNumber int
	if err := tx.QueryRow(ctx, allocDisplayNumberSQL, userID).Scan(&displayNumber); err != nil {
		return nil, fmt.Errorf("create budget: display number allocation failed: %w", err)
	}

	itemsJSON, err := json.Marshal(params.Items)
	if err != nil {
		return nil, fmt.Errorf("create budget: items marshal failed: %w", err)
	}

	var b types.Budget
	err = tx.QueryRow(ctx,
		`INSERT INTO budgets (user_id, display_number, client_name, client_address,
		                      items, total, layout, accent_color, validity_days)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         RETURNING id, created_at, updated_at`,
		userID, displayNumber, params.ClientName, params.ClientAddress,
		itemsJSON, total, params.Layout, params.AccentColor, params.ValidityDays).Scan(
		&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create budget: insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create budget: commit failed: %w", err)
	}

	b.UserID = userID
	b.DisplayNumber = displayNumber
	b.ClientName = params.ClientName
	b.ClientAddress = params.ClientAddress
	b.Items = params.Items
	b.Total = total
	b.Layout = params.Layout
	b.AccentColor = params.AccentColor
	b.ValidityDays = params.ValidityDays
	return &b, nil
}

func (r *PostgresBudgetRepo) GetBudget(ctx context.Context, userID, budgetID uuid.UUID) (*types.Budget, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, display_number, client_name, client_address,
		        items, total, layout, accent_color, validity_days, created_at, updated_at
         FROM budgets WHERE id = $1 AND user_id = $2`, budgetID, userID)
	b, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (r *PostgresBudgetRepo) ListBudgets(ctx context.Context, userID uuid.UUID) ([]types.Budget, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, display_number, client_name, client_address,
		        items, total, layout, accent_color, validity_days, created_at, updated_at
         FROM budgets WHERE user_id = $1 ORDER BY display_number DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: query failed: %w", err)
	}
	defer rows.Close()

	budgets := []types.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("list budgets: %w", err)
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

func (r *PostgresBudgetRepo) UpdateBudget(ctx context.Context, userID, budgetID uuid.UUID, params types.CreateBudgetParams, total float64) error {
	itemsJSON, err := json.Marshal(params.Items)
	if err != nil {
		return fmt.Errorf("update budget: items marshal failed: %w", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE budgets SET client_name = $1, client_address = $2, items = $3,
		        total = $4, layout = $5, accent_color = $6, validity_days = $7,
		        updated_at = now()
         WHERE id = $8 AND user_id = $9`,
		params.ClientName, params.ClientAddress, itemsJSON, total,
		params.Layout, params.AccentColor, params.ValidityDays, budgetID, userID)
	if err != nil {
		return fmt.Errorf("update budget: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresBudgetRepo) DeleteBudget(ctx context.Context, userID, budgetID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM budgets WHERE id = $1 AND user_id = $2`, budgetID, userID)
	if err != nil {
		return fmt.Errorf("delete budget: db delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func scanBudget(row pgx.Row) (*types.Budget, error) {
	var b types.Budget
	var itemsJSON []byte
	err := row.Scan(&b.ID, &b.UserID, &b.DisplayNumber, &b.ClientName, &b.ClientAddress,
		&itemsJSON, &b.Total, &b.Layout, &b.AccentColor, &b.ValidityDays,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &b.Items); err != nil {
		return nil, fmt.Errorf("items unmarshal failed: %w", err)
	}
	return &b, nil
}
