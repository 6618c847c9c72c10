package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ ProfileRepo = (*PostgresProfileRepo)(nil)

// ProfileRepo defines the contract for issuer profile persistence.
type ProfileRepo interface {
	// GetProfile retrieves a user's business profile.
	// Returns types.ErrNotFound if the user never saved one.
	GetProfile(ctx context.Context, userID uuid.UUID) (*types.Profile, error)

	// UpsertProfile creates the profile on first save and applies partial
	// updates afterwards (nil fields untouched).
	UpsertProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) error
}

type PostgresProfileRepo struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewPostgresProfileRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresProfileRepo {
	return &PostgresProfileRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresProfileRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	var p types.Profile
	query := `
		SELECT user_id, company_name, tax_id, phone, street, city,
		       state, postal_code, logo_url, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`
	err := r.pgpool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.CompanyName,
		&p.TaxID,
		&p.Phone,
		&p.Street,
		&p.City,
		&p.State,
		&p.PostalCode,
		&p.LogoURL,
		&p.CreatedAt,
		&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: query failed: %w", err)
	}

	return &p, nil
}

func (r *PostgresProfileRepo) UpsertProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) error {
	ctx, span := otel.Tracer("ProfileRepo").Start(ctx, "UpsertProfile", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "profiles"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "UpsertProfile"), slog.String("userID", userID.String()))

	// Lazy create: make sure the row exists before the partial update.
	_, err := r.pgpool.Exec(ctx,
		`INSERT INTO profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return fmt.Errorf("upsert profile: ensure row failed: %w", err)
	}

	var setClauses []string
	var args []interface{}
	argID := 1

	add := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argID))
		args = append(args, value)
		argID++
	}

	if params.CompanyName != nil {
		add("company_name", *params.CompanyName)
	}
	if params.TaxID != nil {
		add("tax_id", *params.TaxID)
	}
	if params.Phone != nil {
		add("phone", *params.Phone)
	}
	if params.Street != nil {
		add("street", *params.Street)
	}
	if params.City != nil {
		add("city", *params.City)
	}
	if params.State != nil {
		add("state", *params.State)
	}
	if params.PostalCode != nil {
		add("postal_code", *params.PostalCode)
	}
	if params.LogoURL != nil {
		add("logo_url", *params.LogoURL)
	}

	if len(setClauses) == 0 {
		l.DebugContext(ctx, "No profile fields to update")
		return nil
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, userID)
	query := fmt.Sprintf("UPDATE profiles SET %s WHERE user_id = $%d",
		strings.Join(setClauses, ", "), argID)

	if _, err := r.pgpool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert profile: update failed: %w", err)
	}
	return nil
}
