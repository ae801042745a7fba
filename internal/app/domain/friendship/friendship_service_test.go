package friendship

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/app/domain/updates"
	"github.com/parlorchat/parlor/internal/app/models"
)

type MockFriendshipRepo struct {
	mock.Mock
}

func (m *MockFriendshipRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Friendship, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Friendship), args.Error(1)
}

func (m *MockFriendshipRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Friendship, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Friendship), args.Error(1)
}

func (m *MockFriendshipRepo) GetByUserAndTarget(ctx context.Context, userID, targetID uuid.UUID) (*models.Friendship, error) {
	args := m.Called(ctx, userID, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Friendship), args.Error(1)
}

func (m *MockFriendshipRepo) CreatePair(ctx context.Context, userID, targetID uuid.UUID) (*models.Friendship, error) {
	args := m.Called(ctx, userID, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Friendship), args.Error(1)
}

func (m *MockFriendshipRepo) Update(ctx context.Context, id uuid.UUID, nickname *string, important *bool) (*models.Friendship, error) {
	args := m.Called(ctx, id, nickname, important)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Friendship), args.Error(1)
}

func (m *MockFriendshipRepo) SetGroups(ctx context.Context, id, ownerID uuid.UUID, groupIDs []uuid.UUID) error {
	args := m.Called(ctx, id, ownerID, groupIDs)
	return args.Error(0)
}

func (m *MockFriendshipRepo) DeletePair(ctx context.Context, chatroomID uuid.UUID) error {
	args := m.Called(ctx, chatroomID)
	return args.Error(0)
}

func (m *MockFriendshipRepo) CreateGroup(ctx context.Context, userID uuid.UUID, name string) (*models.FriendshipGroup, error) {
	args := m.Called(ctx, userID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendshipGroup), args.Error(1)
}

func (m *MockFriendshipRepo) ListGroups(ctx context.Context, userID uuid.UUID) ([]models.FriendshipGroup, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FriendshipGroup), args.Error(1)
}

func (m *MockFriendshipRepo) GetGroup(ctx context.Context, id uuid.UUID) (*models.FriendshipGroup, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendshipGroup), args.Error(1)
}

func (m *MockFriendshipRepo) RenameGroup(ctx context.Context, id uuid.UUID, name string) (*models.FriendshipGroup, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendshipGroup), args.Error(1)
}

func (m *MockFriendshipRepo) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFriendshipRepo) CreateRequest(ctx context.Context, userID, targetID uuid.UUID, message string) (*models.FriendshipRequest, error) {
	args := m.Called(ctx, userID, targetID, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendshipRequest), args.Error(1)
}

func (m *MockFriendshipRepo) ListRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendshipRequest, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FriendshipRequest), args.Error(1)
}

func (m *MockFriendshipRepo) GetRequest(ctx context.Context, id uuid.UUID) (*models.FriendshipRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendshipRequest), args.Error(1)
}

func (m *MockFriendshipRepo) SetRequestState(ctx context.Context, id uuid.UUID, state string) (*models.FriendshipRequest, error) {
	args := m.Called(ctx, id, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendshipRequest), args.Error(1)
}

func (m *MockFriendshipRepo) AcceptRequest(ctx context.Context, id uuid.UUID) (*models.FriendshipRequest, *models.Friendship, error) {
	args := m.Called(ctx, id)
	var req *models.FriendshipRequest
	if args.Get(0) != nil {
		req = args.Get(0).(*models.FriendshipRequest)
	}
	var friendship *models.Friendship
	if args.Get(1) != nil {
		friendship = args.Get(1).(*models.Friendship)
	}
	return req, friendship, args.Error(2)
}

func (m *MockFriendshipRepo) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type recordingNotifier struct {
	published []models.Update
	audiences [][]uuid.UUID
}

func (n *recordingNotifier) Publish(ctx context.Context, userIDs []uuid.UUID, u models.Update) {
	n.published = append(n.published, u)
	n.audiences = append(n.audiences, userIDs)
}

func TestCreateFriendshipRequest(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	userID := uuid.New()
	targetID := uuid.New()

	t.Run("cannot befriend yourself", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		_, err := svc.CreateRequest(ctx, userID, userID, "")
		assert.ErrorIs(t, err, models.ErrValidation)
		repo.AssertNotCalled(t, "CreateRequest")
	})

	t.Run("conflict when already friends", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		repo.On("GetByUserAndTarget", mock.Anything, userID, targetID).
			Return(&models.Friendship{UserID: userID, TargetID: targetID}, nil)

		_, err := svc.CreateRequest(ctx, userID, targetID, "")
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("conflict when the target already asked", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		repo.On("GetByUserAndTarget", mock.Anything, userID, targetID).
			Return(nil, models.ErrNotFound)
		repo.On("ListRequests", mock.Anything, targetID).
			Return([]models.FriendshipRequest{
				{UserID: targetID, TargetID: userID, State: models.StatePending},
			}, nil)

		_, err := svc.CreateRequest(ctx, userID, targetID, "hi")
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("success notifies the target", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		notifier := &recordingNotifier{}
		svc := NewService(repo, notifier, logger)

		req := &models.FriendshipRequest{ID: uuid.New(), UserID: userID, TargetID: targetID, State: models.StatePending}
		repo.On("GetByUserAndTarget", mock.Anything, userID, targetID).
			Return(nil, models.ErrNotFound)
		repo.On("ListRequests", mock.Anything, targetID).
			Return([]models.FriendshipRequest{}, nil)
		repo.On("CreateRequest", mock.Anything, userID, targetID, "hi").Return(req, nil)

		got, err := svc.CreateRequest(ctx, userID, targetID, "hi")
		require.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)
		require.Len(t, notifier.published, 1)
		assert.Equal(t, updates.ModelFriendshipRequest, notifier.published[0].Model)
		assert.Equal(t, []uuid.UUID{targetID}, notifier.audiences[0])
	})
}

func TestAcceptFriendshipRequest(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	requesterID := uuid.New()
	targetID := uuid.New()

	t.Run("target accepts and pair is created", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		notifier := &recordingNotifier{}
		svc := NewService(repo, notifier, logger)

		req := &models.FriendshipRequest{ID: uuid.New(), UserID: requesterID, TargetID: targetID, State: models.StatePending}
		accepted := *req
		accepted.State = models.StateAccepted
		chatroomID := uuid.New()
		created := &models.Friendship{ID: uuid.New(), UserID: requesterID, TargetID: targetID, ChatroomID: chatroomID}
		mirror := &models.Friendship{ID: uuid.New(), UserID: targetID, TargetID: requesterID, ChatroomID: chatroomID}

		repo.On("GetRequest", mock.Anything, req.ID).Return(req, nil)
		repo.On("AcceptRequest", mock.Anything, req.ID).Return(&accepted, created, nil)
		repo.On("GetByUserAndTarget", mock.Anything, targetID, requesterID).Return(mirror, nil)

		got, err := svc.Accept(ctx, targetID, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateAccepted, got.State)

		// Request update, two friendship creates and the chatroom create.
		require.Len(t, notifier.published, 4)
		assert.Equal(t, updates.ModelFriendshipRequest, notifier.published[0].Model)
		assert.Equal(t, updates.ModelFriendship, notifier.published[1].Model)
		assert.Equal(t, updates.ModelFriendship, notifier.published[2].Model)
		assert.Equal(t, updates.ModelChatroom, notifier.published[3].Model)
	})

	t.Run("only the target may accept", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		req := &models.FriendshipRequest{ID: uuid.New(), UserID: requesterID, TargetID: targetID, State: models.StatePending}
		repo.On("GetRequest", mock.Anything, req.ID).Return(req, nil)

		_, err := svc.Accept(ctx, requesterID, req.ID)
		assert.ErrorIs(t, err, models.ErrForbidden)
		repo.AssertNotCalled(t, "AcceptRequest")
	})

	t.Run("resolved request cannot be accepted", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		req := &models.FriendshipRequest{ID: uuid.New(), UserID: requesterID, TargetID: targetID, State: models.StateRejected}
		repo.On("GetRequest", mock.Anything, req.ID).Return(req, nil)

		_, err := svc.Accept(ctx, targetID, req.ID)
		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestDeleteFriendship(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	userID := uuid.New()
	targetID := uuid.New()
	chatroomID := uuid.New()

	t.Run("either side can end it", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		notifier := &recordingNotifier{}
		svc := NewService(repo, notifier, logger)

		f := &models.Friendship{ID: uuid.New(), UserID: userID, TargetID: targetID, ChatroomID: chatroomID}
		mirror := &models.Friendship{ID: uuid.New(), UserID: targetID, TargetID: userID, ChatroomID: chatroomID}
		repo.On("GetByID", mock.Anything, f.ID).Return(f, nil)
		repo.On("GetByUserAndTarget", mock.Anything, targetID, userID).Return(mirror, nil)
		repo.On("DeletePair", mock.Anything, chatroomID).Return(nil)

		require.NoError(t, svc.Delete(ctx, userID, f.ID))

		// Two friendship deletes plus the chatroom delete.
		require.Len(t, notifier.published, 3)
		assert.Equal(t, models.EventDelete, notifier.published[0].Event)
		assert.Equal(t, updates.ModelChatroom, notifier.published[2].Model)
	})

	t.Run("a stranger cannot end it", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		f := &models.Friendship{ID: uuid.New(), UserID: userID, TargetID: targetID, ChatroomID: chatroomID}
		repo.On("GetByID", mock.Anything, f.ID).Return(f, nil)

		assert.ErrorIs(t, svc.Delete(ctx, uuid.New(), f.ID), models.ErrForbidden)
		repo.AssertNotCalled(t, "DeletePair")
	})
}

func TestUpdateFriendship(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	userID := uuid.New()

	t.Run("nickname length is capped", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		f := &models.Friendship{ID: uuid.New(), UserID: userID}
		repo.On("GetByID", mock.Anything, f.ID).Return(f, nil)

		long := "this nickname is far too long"
		_, err := svc.Update(ctx, userID, f.ID, &long, nil, nil)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("only the owning side may patch", func(t *testing.T) {
		repo := new(MockFriendshipRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		f := &models.Friendship{ID: uuid.New(), UserID: userID}
		repo.On("GetByID", mock.Anything, f.ID).Return(f, nil)

		nick := "pal"
		_, err := svc.Update(ctx, uuid.New(), f.ID, &nick, nil, nil)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})
}
