package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/ultraorca/ultraorca-api/config"
	"github.com/ultraorca/ultraorca-api/internal/types"
)

// MockAuthRepo is a mock implementation of the AuthRepo interface
type MockAuthRepo struct {
	mock.Mock
}

func (m *MockAuthRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (string, error) {
	args := m.Called(ctx, username, email, passwordHash)
	return args.String(0), args.Error(1)
}

func (m *MockAuthRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockAuthRepo) GetUserByID(ctx context.Context, userID string) (*User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockAuthRepo) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, token, expiresAt)
	return args.Error(0)
}

func (m *MockAuthRepo) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *MockAuthRepo) RevokeRefreshToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockAuthRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT = config.JWTConfig{
		SecretKey:       "test-access-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "test-issuer",
		Audience:        "test-audience",
	}
	return cfg
}

func TestLogin(t *testing.T) {
	mockRepo := new(MockAuthRepo)
	logger := slog.Default()
	service := NewAuthService(mockRepo, nil, testConfig(), logger)

	t.Run("Success", func(t *testing.T) {
		ctx := context.Background()
		email := "test@example.com"
		password := "password123"
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		user := &User{
			ID:           "0f8d8a6b-5a74-4f1e-9c51-0f4a0c7a2a10",
			Username:     "testuser",
			Email:        email,
			PasswordHash: string(hashedPassword),
			Role:         "user",
			IsActive:     true,
		}

		mockRepo.On("GetUserByEmail", ctx, email).Return(user, nil).Once()
		mockRepo.On("StoreRefreshToken", ctx, user.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil).Once()

		accessToken, refreshToken, err := service.Login(ctx, email, password)

		assert.NoError(t, err)
		assert.NotEmpty(t, accessToken)
		assert.NotEmpty(t, refreshToken)
		mockRepo.AssertExpectations(t)
	})

	t.Run("UserNotFound", func(t *testing.T) {
		ctx := context.Background()
		email := "nonexistent@example.com"

		mockRepo.On("GetUserByEmail", ctx, email).Return(nil, types.ErrNotFound).Once()

		accessToken, refreshToken, err := service.Login(ctx, email, "password123")

		assert.Error(t, err)
		assert.Empty(t, accessToken)
		assert.Empty(t, refreshToken)
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})

	t.Run("InvalidPassword", func(t *testing.T) {
		ctx := context.Background()
		email := "test@example.com"
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("correctpassword"), bcrypt.DefaultCost)

		user := &User{
			ID:           "0f8d8a6b-5a74-4f1e-9c51-0f4a0c7a2a10",
			Username:     "testuser",
			Email:        email,
			PasswordHash: string(hashedPassword),
			IsActive:     true,
		}

		mockRepo.On("GetUserByEmail", ctx, email).Return(user, nil).Once()

		_, _, err := service.Login(ctx, email, "wrongpassword")

		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})

	t.Run("InactiveUser", func(t *testing.T) {
		ctx := context.Background()
		email := "inactive@example.com"
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)

		user := &User{
			ID:           "5e2c9a3b-1d0f-4d8e-8f77-6f3b2b1a9c44",
			Email:        email,
			PasswordHash: string(hashedPassword),
			IsActive:     false,
		}

		mockRepo.On("GetUserByEmail", ctx, email).Return(user, nil).Once()

		_, _, err := service.Login(ctx, email, "password123")

		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})
}

func TestRegister(t *testing.T) {
	mockRepo := new(MockAuthRepo)
	service := NewAuthService(mockRepo, nil, testConfig(), slog.Default())

	t.Run("Success", func(t *testing.T) {
		ctx := context.Background()

		mockRepo.On("CreateUser", ctx, "newuser", "new@example.com", mock.AnythingOfType("string")).
			Return("b8a1a6ce-93c4-4f3a-9a6e-df51a2f0c9d3", nil).Once()

		userID, err := service.Register(ctx, "newuser", "new@example.com", "longenoughpw")

		assert.NoError(t, err)
		assert.NotEmpty(t, userID)
		mockRepo.AssertExpectations(t)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		_, err := service.Register(context.Background(), "newuser", "new@example.com", "short")
		assert.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		ctx := context.Background()
		mockRepo.On("CreateUser", ctx, "dupe", "dupe@example.com", mock.AnythingOfType("string")).
			Return("", types.ErrConflict).Once()

		_, err := service.Register(ctx, "dupe", "dupe@example.com", "longenoughpw")

		assert.ErrorIs(t, err, types.ErrConflict)
		mockRepo.AssertExpectations(t)
	})
}

func TestRefreshSession(t *testing.T) {
	mockRepo := new(MockAuthRepo)
	service := NewAuthService(mockRepo, nil, testConfig(), slog.Default())

	t.Run("RotatesToken", func(t *testing.T) {
		ctx := context.Background()
		oldToken := "old-refresh-token"
		userID := "0f8d8a6b-5a74-4f1e-9c51-0f4a0c7a2a10"

		user := &User{ID: userID, Username: "testuser", Email: "test@example.com", IsActive: true}

		mockRepo.On("ValidateRefreshToken", ctx, oldToken).Return(userID, nil).Once()
		mockRepo.On("GetUserByID", ctx, userID).Return(user, nil).Once()
		mockRepo.On("StoreRefreshToken", ctx, userID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil).Once()
		mockRepo.On("RevokeRefreshToken", ctx, oldToken).Return(nil).Once()

		access, refresh, err := service.RefreshSession(ctx, oldToken)

		assert.NoError(t, err)
		assert.NotEmpty(t, access)
		assert.NotEmpty(t, refresh)
		assert.NotEqual(t, oldToken, refresh)
		mockRepo.AssertExpectations(t)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		ctx := context.Background()
		mockRepo.On("ValidateRefreshToken", ctx, "stale").Return("", types.ErrUnauthenticated).Once()

		_, _, err := service.RefreshSession(ctx, "stale")

		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})
}
