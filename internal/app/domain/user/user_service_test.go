package user

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/app/models"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) List(ctx context.Context, search string, page, pageSize int) ([]models.User, int, error) {
	args := m.Called(ctx, search, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.User), args.Int(1), args.Error(2)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, bio, sex *string) (*models.User, error) {
	args := m.Called(ctx, userID, bio, sex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("clamps pagination", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, logger)

		repo.On("List", mock.Anything, "", 1, maxPageSize).
			Return([]models.User{}, 0, nil)

		page, err := svc.List(ctx, "", -3, 900)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, maxPageSize, page.PageSize)
	})

	t.Run("folds the search needle", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, logger)

		repo.On("List", mock.Anything, "alice", 1, defaultPageSize).
			Return([]models.User{{Username: "alice"}}, 1, nil)

		page, err := svc.List(ctx, "  ALICE ", 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		repo.AssertExpectations(t)
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	ownerID := uuid.New()
	owner := &models.User{ID: ownerID, Username: "alice"}

	t.Run("owner updates bio and sex", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, logger)

		bio := "hello there"
		sex := models.SexFemale
		repo.On("GetByUsername", mock.Anything, "alice").Return(owner, nil)
		repo.On("UpdateProfile", mock.Anything, ownerID, &bio, &sex).
			Return(&models.User{ID: ownerID, Username: "alice", Bio: bio, Sex: sex}, nil)

		u, err := svc.UpdateProfile(ctx, ownerID, "alice", &bio, &sex)
		require.NoError(t, err)
		assert.Equal(t, bio, u.Bio)
	})

	t.Run("someone else is forbidden", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, logger)

		repo.On("GetByUsername", mock.Anything, "alice").Return(owner, nil)

		bio := "hijacked"
		_, err := svc.UpdateProfile(ctx, uuid.New(), "alice", &bio, nil)
		assert.ErrorIs(t, err, models.ErrForbidden)
		repo.AssertNotCalled(t, "UpdateProfile")
	})

	t.Run("bio length is capped", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, logger)

		repo.On("GetByUsername", mock.Anything, "alice").Return(owner, nil)

		long := strings.Repeat("a", maxBioLength+1)
		_, err := svc.UpdateProfile(ctx, ownerID, "alice", &long, nil)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("sex must be a known value", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := NewService(repo, logger)

		repo.On("GetByUsername", mock.Anything, "alice").Return(owner, nil)

		bad := "Q"
		_, err := svc.UpdateProfile(ctx, ownerID, "alice", nil, &bad)
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}
