package billing

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
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ultraorca/ultraorca-api/app/observability/metrics"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ BillingRepo = (*PostgresBillingRepo)(nil)

// BillingRepo persists the single logical subscription row per user.
type BillingRepo interface {
	UpsertSubscription(ctx context.Context, sub types.Subscription) error
	UpdateStatus(ctx context.Context, userID uuid.UUID, status types.SubscriptionStatus) error
	GetSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error)
	// FindByProviderCustomerID resolves the owner of a gateway event whose
	// payload carries only the customer id.
	FindByProviderCustomerID(ctx context.Context, provider types.Provider, customerID string) (*types.Subscription, error)
}

type PostgresBillingRepo struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewPostgresBillingRepo(pgxpool *pgxpool.Pool, logger *slog.Logger) *PostgresBillingRepo {
	return &PostgresBillingRepo{
		logger: logger,
		pgpool: pgxpool,
	}
}

func (r *PostgresBillingRepo) UpsertSubscription(ctx context.Context, sub types.Subscription) error {
	ctx, span := otel.Tracer("BillingRepo").Start(ctx, "UpsertSubscription", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "subscriptions"),
	))
	defer span.End()

	start := time.Now()
	_, err := r.pgpool.Exec(ctx,
		`INSERT INTO subscriptions (user_id, status, provider, provider_subscription_id,
		                            provider_customer_id, plan_type, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, now())
         ON CONFLICT (user_id) DO UPDATE SET
             status                   = EXCLUDED.status,
             provider                 = EXCLUDED.provider,
             provider_subscription_id = EXCLUDED.provider_subscription_id,
             provider_customer_id     = EXCLUDED.provider_customer_id,
             plan_type                = EXCLUDED.plan_type,
             updated_at               = now()`,
		sub.UserID, sub.Status, sub.Provider, sub.ProviderSubscriptionID,
		sub.ProviderCustomerID, sub.PlanType)
	metrics.Get().DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("query", "upsert_subscription")))
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (r *PostgresBillingRepo) UpdateStatus(ctx context.Context, userID uuid.UUID, status types.SubscriptionStatus) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = now() WHERE user_id = $2`,
		status, userID)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

const selectSubscriptionSQL = `
	SELECT user_id, status, provider, provider_subscription_id,
	       provider_customer_id, plan_type, updated_at
	FROM subscriptions`

func (r *PostgresBillingRepo) GetSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error) {
	row := r.pgpool.QueryRow(ctx, selectSubscriptionSQL+` WHERE user_id = $1`, userID)
	return scanSubscription(row)
}

func (r *PostgresBillingRepo) FindByProviderCustomerID(ctx context.Context, provider types.Provider, customerID string) (*types.Subscription, error) {
	row := r.pgpool.QueryRow(ctx,
		selectSubscriptionSQL+` WHERE provider = $1 AND provider_customer_id = $2`,
		provider, customerID)
	return scanSubscription(row)
}

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(&s.UserID, &s.Status, &s.Provider, &s.ProviderSubscriptionID,
		&s.ProviderCustomerID, &s.PlanType, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &s, nil
}
