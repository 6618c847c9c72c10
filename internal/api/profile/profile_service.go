package profile

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ultraorca/ultraorca-api/internal/types"
)

var _ ProfileService = (*ProfileServiceImpl)(nil)

type ProfileService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*types.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) error
}

type ProfileServiceImpl struct {
	logger *slog.Logger
	repo   ProfileRepo
}

func NewProfileService(repo ProfileRepo, logger *slog.Logger) *ProfileServiceImpl {
	return &ProfileServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *ProfileServiceImpl) GetProfile(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

func (s *ProfileServiceImpl) UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) error {
	return s.repo.UpsertProfile(ctx, userID, params)
}
