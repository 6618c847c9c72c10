package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ultraorca/ultraorca-api/app/observability/metrics"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ EntitlementRepo = (*PostgresEntitlementRepo)(nil)

// EntitlementRepo reads the state the quota decision depends on. Counts must
// be fresh, so nothing on this path is cached; it is not a hot endpoint.
type EntitlementRepo interface {
	// GetActivePlan returns the plan of the user's active subscription, or
	// types.PlanFree when no active row exists.
	GetActivePlan(ctx context.Context, userID uuid.UUID) (types.Plan, error)
	CountBudgetsTotal(ctx context.Context, userID uuid.UUID) (int, error)
	CountBudgetsInCurrentMonth(ctx context.Context, userID uuid.UUID) (int, error)
}

type PostgresEntitlementRepo struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewPostgresEntitlementRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresEntitlementRepo {
	return &PostgresEntitlementRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresEntitlementRepo) GetActivePlan(ctx context.Context, userID uuid.UUID) (types.Plan, error) {
	ctx, span := otel.Tracer("EntitlementRepo").Start(ctx, "GetActivePlan", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "subscriptions"),
	))
	defer span.End()

	var plan types.Plan
	err := r.pgpool.QueryRow(ctx,
		`SELECT plan_type FROM subscriptions WHERE user_id = $1 AND status = 'active'`,
		userID).Scan(&plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.PlanFree, nil
		}
		return "", fmt.Errorf("get active plan: query failed: %w", err)
	}
	return plan, nil
}

func (r *PostgresEntitlementRepo) CountBudgetsTotal(ctx context.Context, userID uuid.UUID) (int, error) {
	start := time.Now()
	var count int
	err := r.pgpool.QueryRow(ctx,
		`SELECT count(*) FROM budgets WHERE user_id = $1`, userID).Scan(&count)
	metrics.Get().DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("count budgets: query failed: %w", err)
	}
	return count, nil
}

func (r *PostgresEntitlementRepo) CountBudgetsInCurrentMonth(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pgpool.QueryRow(ctx,
		`SELECT count(*) FROM budgets
         WHERE user_id = $1 AND created_at >= date_trunc('month', now())`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count budgets this month: query failed: %w", err)
	}
	return count, nil
}
