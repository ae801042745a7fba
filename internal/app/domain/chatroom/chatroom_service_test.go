package chatroom

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/app/domain/updates"
	"github.com/parlorchat/parlor/internal/app/models"
)

type MockChatroomRepo struct {
	mock.Mock
}

func (m *MockChatroomRepo) Create(ctx context.Context, name string, creatorID uuid.UUID) (*models.Chatroom, error) {
	args := m.Called(ctx, name, creatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chatroom), args.Error(1)
}

func (m *MockChatroomRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chatroom), args.Error(1)
}

func (m *MockChatroomRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Chatroom, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chatroom), args.Error(1)
}

func (m *MockChatroomRepo) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Chatroom, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chatroom), args.Error(1)
}

func (m *MockChatroomRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockChatroomRepo) GetMembership(ctx context.Context, chatroomID, userID uuid.UUID) (*models.ChatroomMembership, error) {
	args := m.Called(ctx, chatroomID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatroomMembership), args.Error(1)
}

func (m *MockChatroomRepo) MemberIDs(ctx context.Context, chatroomID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, chatroomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type recordingNotifier struct {
	published []models.Update
	audiences [][]uuid.UUID
}

func (n *recordingNotifier) Publish(ctx context.Context, userIDs []uuid.UUID, u models.Update) {
	n.published = append(n.published, u)
	n.audiences = append(n.audiences, userIDs)
}

func TestCreateChatroom(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	creatorID := uuid.New()

	t.Run("success", func(t *testing.T) {
		repo := new(MockChatroomRepo)
		notifier := &recordingNotifier{}
		svc := NewService(repo, notifier, logger)

		room := &models.Chatroom{ID: uuid.New(), Name: "lounge", CreatorID: creatorID}
		repo.On("Create", mock.Anything, "lounge", creatorID).Return(room, nil)

		got, err := svc.Create(ctx, creatorID, "lounge")
		require.NoError(t, err)
		assert.Equal(t, room.ID, got.ID)
		require.Len(t, notifier.published, 1)
		assert.Equal(t, updates.ModelChatroom, notifier.published[0].Model)
		assert.Equal(t, []uuid.UUID{creatorID}, notifier.audiences[0])
	})

	t.Run("name required", func(t *testing.T) {
		svc := NewService(new(MockChatroomRepo), &recordingNotifier{}, logger)
		_, err := svc.Create(ctx, creatorID, "")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("name too long", func(t *testing.T) {
		svc := NewService(new(MockChatroomRepo), &recordingNotifier{}, logger)
		_, err := svc.Create(ctx, creatorID, strings.Repeat("x", maxNameLength+1))
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("multibyte name counts characters", func(t *testing.T) {
		repo := new(MockChatroomRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		name := strings.Repeat("é", maxNameLength)
		repo.On("Create", mock.Anything, name, creatorID).
			Return(&models.Chatroom{ID: uuid.New(), Name: name, CreatorID: creatorID}, nil)

		_, err := svc.Create(ctx, creatorID, name)
		require.NoError(t, err)
	})
}

func TestRenameChatroom(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	roomID := uuid.New()
	callerID := uuid.New()

	t.Run("manager renames", func(t *testing.T) {
		repo := new(MockChatroomRepo)
		notifier := &recordingNotifier{}
		svc := NewService(repo, notifier, logger)

		repo.On("GetMembership", mock.Anything, roomID, callerID).
			Return(&models.ChatroomMembership{UserID: callerID, ChatroomID: roomID, IsManager: true}, nil)
		repo.On("Rename", mock.Anything, roomID, "den").
			Return(&models.Chatroom{ID: roomID, Name: "den"}, nil)
		repo.On("MemberIDs", mock.Anything, roomID).Return([]uuid.UUID{callerID}, nil)

		room, err := svc.Rename(ctx, callerID, roomID, "den")
		require.NoError(t, err)
		assert.Equal(t, "den", room.Name)
		require.Len(t, notifier.published, 1)
		assert.Equal(t, models.EventUpdate, notifier.published[0].Event)
	})

	t.Run("plain member is forbidden", func(t *testing.T) {
		repo := new(MockChatroomRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		repo.On("GetMembership", mock.Anything, roomID, callerID).
			Return(&models.ChatroomMembership{UserID: callerID, ChatroomID: roomID}, nil)

		_, err := svc.Rename(ctx, callerID, roomID, "den")
		assert.ErrorIs(t, err, models.ErrForbidden)
		repo.AssertNotCalled(t, "Rename")
	})

	t.Run("exclusive room is immutable", func(t *testing.T) {
		repo := new(MockChatroomRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		repo.On("GetMembership", mock.Anything, roomID, callerID).
			Return(&models.ChatroomMembership{UserID: callerID, ChatroomID: roomID, IsManager: true, Exclusive: true}, nil)

		_, err := svc.Rename(ctx, callerID, roomID, "den")
		assert.ErrorIs(t, err, models.ErrForbidden)
	})
}

func TestDeleteChatroom(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	roomID := uuid.New()
	creatorID := uuid.New()

	t.Run("creator deletes", func(t *testing.T) {
		repo := new(MockChatroomRepo)
		notifier := &recordingNotifier{}
		svc := NewService(repo, notifier, logger)

		repo.On("GetByID", mock.Anything, roomID).
			Return(&models.Chatroom{ID: roomID, CreatorID: creatorID}, nil)
		repo.On("MemberIDs", mock.Anything, roomID).Return([]uuid.UUID{creatorID}, nil)
		repo.On("Delete", mock.Anything, roomID).Return(nil)

		require.NoError(t, svc.Delete(ctx, creatorID, roomID))
		require.Len(t, notifier.published, 1)
		assert.Equal(t, models.EventDelete, notifier.published[0].Event)
	})

	t.Run("manager who is not the creator is forbidden", func(t *testing.T) {
		repo := new(MockChatroomRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		repo.On("GetByID", mock.Anything, roomID).
			Return(&models.Chatroom{ID: roomID, CreatorID: creatorID}, nil)

		assert.ErrorIs(t, svc.Delete(ctx, uuid.New(), roomID), models.ErrForbidden)
		repo.AssertNotCalled(t, "Delete")
	})

	t.Run("exclusive room cannot be deleted directly", func(t *testing.T) {
		repo := new(MockChatroomRepo)
		svc := NewService(repo, &recordingNotifier{}, logger)

		repo.On("GetByID", mock.Anything, roomID).
			Return(&models.Chatroom{ID: roomID, CreatorID: creatorID, FriendshipExclusive: true}, nil)

		assert.ErrorIs(t, svc.Delete(ctx, creatorID, roomID), models.ErrForbidden)
	})
}
