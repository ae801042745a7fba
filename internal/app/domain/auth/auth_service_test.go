package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/app/models"
	"github.com/parlorchat/parlor/internal/pkg/config"
)

type MockAuthRepo struct {
	mock.Mock
}

func (m *MockAuthRepo) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	args := m.Called(ctx, username, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthRepo) GetUserAuthByUsername(ctx context.Context, username string) (*models.UserAuth, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserAuth), args.Error(1)
}

func (m *MockAuthRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, userID, passwordHash)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			SecretKey:      "unit-test-secret-key-keep-it-long",
			AccessTokenTTL: time.Hour,
			Issuer:         "parlor",
		},
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("success", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		userID := uuid.New()
		repo.On("CreateUser", mock.Anything, "alice", mock.AnythingOfType("string")).
			Return(&models.User{ID: userID, Username: "alice"}, nil)

		user, token, err := svc.Register(ctx, "alice", "password123")
		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
		assert.NotEmpty(t, token)

		claims, err := ValidateToken(testConfig().JWT, token)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), claims.UserID)
		assert.Equal(t, "alice", claims.Username)
		repo.AssertExpectations(t)
	})

	t.Run("rejects short username", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		_, _, err := svc.Register(ctx, "ab", "password123")
		assert.ErrorIs(t, err, models.ErrValidation)
		repo.AssertNotCalled(t, "CreateUser")
	})

	t.Run("rejects invalid characters", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		_, _, err := svc.Register(ctx, "al ice", "password123")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("rejects short password", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		_, _, err := svc.Register(ctx, "alice", "short")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("propagates username conflict", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		repo.On("CreateUser", mock.Anything, "alice", mock.AnythingOfType("string")).
			Return(nil, models.ErrConflict)

		_, _, err := svc.Register(ctx, "alice", "password123")
		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	userID := uuid.New()
	hash, err := HashPassword("password123")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		repo.On("GetUserAuthByUsername", mock.Anything, "alice").
			Return(&models.UserAuth{ID: userID, Username: "alice", PasswordHash: hash}, nil)
		repo.On("GetUserByID", mock.Anything, userID).
			Return(&models.User{ID: userID, Username: "alice"}, nil)

		user, token, err := svc.Login(ctx, "alice", "password123")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.NotEmpty(t, token)
	})

	t.Run("wrong password", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		repo.On("GetUserAuthByUsername", mock.Anything, "alice").
			Return(&models.UserAuth{ID: userID, Username: "alice", PasswordHash: hash}, nil)

		_, _, err := svc.Login(ctx, "alice", "not-the-password")
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("unknown user looks the same as wrong password", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		repo.On("GetUserAuthByUsername", mock.Anything, "ghost").
			Return(nil, models.ErrNotFound)

		_, _, err := svc.Login(ctx, "ghost", "password123")
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	userID := uuid.New()
	hash, err := HashPassword("old-password")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		repo.On("GetUserByID", mock.Anything, userID).
			Return(&models.User{ID: userID, Username: "alice"}, nil)
		repo.On("GetUserAuthByUsername", mock.Anything, "alice").
			Return(&models.UserAuth{ID: userID, Username: "alice", PasswordHash: hash}, nil)
		repo.On("UpdatePassword", mock.Anything, userID, mock.AnythingOfType("string")).
			Return(nil)

		err := svc.ChangePassword(ctx, userID, "old-password", "new-password")
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("wrong current password", func(t *testing.T) {
		repo := new(MockAuthRepo)
		svc := NewService(repo, testConfig(), logger)

		repo.On("GetUserByID", mock.Anything, userID).
			Return(&models.User{ID: userID, Username: "alice"}, nil)
		repo.On("GetUserAuthByUsername", mock.Anything, "alice").
			Return(&models.UserAuth{ID: userID, Username: "alice", PasswordHash: hash}, nil)

		err := svc.ChangePassword(ctx, userID, "wrong", "new-password")
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
		repo.AssertNotCalled(t, "UpdatePassword")
	})
}
