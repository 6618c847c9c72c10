package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ultraorca/ultraorca-api/config"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// PlanReader resolves the current plan of a user for the JWT plan claim.
// Implemented by the billing repository; nil is allowed (claim stays empty).
type PlanReader interface {
	GetActivePlan(ctx context.Context, userID uuid.UUID) (types.Plan, error)
}

type AuthService interface {
	Register(ctx context.Context, username, email, password string) (string, error)
	// Login authenticates a user and returns access and refresh tokens.
	Login(ctx context.Context, email, password string) (string, string, error)
	RefreshSession(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context, refreshToken string) error
	InvalidateAllSessions(ctx context.Context, userID string) error
}

type AuthServiceImpl struct {
	logger *slog.Logger
	repo   AuthRepo
	plans  PlanReader
	cfg    *config.Config
}

func NewAuthService(repo AuthRepo, plans PlanReader, cfg *config.Config, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger: logger,
		repo:   repo,
		plans:  plans,
		cfg:    cfg,
	}
}

func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (string, error) {
	if username == "" || email == "" || len(password) < 8 {
		return "", fmt.Errorf("username, email and a password of at least 8 characters are required: %w", types.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := s.repo.CreateUser(ctx, username, email, string(hashed))
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, string, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			// Same answer as a wrong password; do not reveal which one failed.
			return "", "", types.ErrUnauthenticated
		}
		return "", "", fmt.Errorf("login lookup failed: %w", err)
	}
	if !user.IsActive {
		return "", "", types.ErrUnauthenticated
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", "", types.ErrUnauthenticated
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthServiceImpl) RefreshSession(ctx context.Context, refreshToken string) (string, string, error) {
	userID, err := s.repo.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", "", err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("refresh lookup failed: %w", err)
	}

	access, refresh, err := s.issueTokens(ctx, user)
	if err != nil {
		return "", "", err
	}

	// Rotate: the old token is dead once the new pair exists.
	if err := s.repo.RevokeRefreshToken(ctx, refreshToken); err != nil {
		s.logger.WarnContext(ctx, "Failed to revoke rotated refresh token", slog.Any("error", err))
	}
	return access, refresh, nil
}

func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	return s.repo.RevokeRefreshToken(ctx, refreshToken)
}

func (s *AuthServiceImpl) InvalidateAllSessions(ctx context.Context, userID string) error {
	return s.repo.RevokeAllUserRefreshTokens(ctx, userID)
}

func (s *AuthServiceImpl) issueTokens(ctx context.Context, user *User) (string, string, error) {
	plan := ""
	if s.plans != nil {
		if uid, err := uuid.Parse(user.ID); err == nil {
			if p, err := s.plans.GetActivePlan(ctx, uid); err == nil {
				plan = string(p)
			}
		}
	}

	accessToken, err := s.generateAccessToken(user, plan)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken := uuid.NewString()
	expiresAt := time.Now().Add(s.cfg.JWT.RefreshTokenTTL)
	if err := s.repo.StoreRefreshToken(ctx, user.ID, refreshToken, expiresAt); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (s *AuthServiceImpl) generateAccessToken(user *User, plan string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:           user.ID,
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
		SubscriptionPlan: plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.JWT.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.JWT.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWT.SecretKey))
}
