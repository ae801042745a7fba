package friendship

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/parlorchat/parlor/internal/app/domain/updates"
	"github.com/parlorchat/parlor/internal/app/models"
)

const (
	maxNicknameLength  = 20
	maxGroupNameLength = 20
	maxMessageLength   = 50
)

// Notifier publishes update events to the realtime feed.
type Notifier interface {
	Publish(ctx context.Context, userIDs []uuid.UUID, u models.Update)
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	List(ctx context.Context, callerID uuid.UUID) ([]models.Friendship, error)
	Get(ctx context.Context, callerID, friendshipID uuid.UUID) (*models.Friendship, error)
	// Update patches the caller's side of the friendship: nickname,
	// importance and group assignment.
	Update(ctx context.Context, callerID, friendshipID uuid.UUID, nickname *string, important *bool, groupIDs []uuid.UUID) (*models.Friendship, error)
	// Delete ends the friendship from either side. The exclusive chatroom
	// and the mirrored row disappear with it.
	Delete(ctx context.Context, callerID, friendshipID uuid.UUID) error

	CreateGroup(ctx context.Context, callerID uuid.UUID, name string) (*models.FriendshipGroup, error)
	ListGroups(ctx context.Context, callerID uuid.UUID) ([]models.FriendshipGroup, error)
	RenameGroup(ctx context.Context, callerID, groupID uuid.UUID, name string) (*models.FriendshipGroup, error)
	DeleteGroup(ctx context.Context, callerID, groupID uuid.UUID) error

	CreateRequest(ctx context.Context, callerID, targetID uuid.UUID, message string) (*models.FriendshipRequest, error)
	ListRequests(ctx context.Context, callerID uuid.UUID) ([]models.FriendshipRequest, error)
	// Accept resolves a pending request into a friendship pair. Target only.
	Accept(ctx context.Context, callerID, requestID uuid.UUID) (*models.FriendshipRequest, error)
	Reject(ctx context.Context, callerID, requestID uuid.UUID) (*models.FriendshipRequest, error)
	Cancel(ctx context.Context, callerID, requestID uuid.UUID) error
}

type ServiceImpl struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
}

func NewService(repo Repository, notifier Notifier, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *ServiceImpl) List(ctx context.Context, callerID uuid.UUID) ([]models.Friendship, error) {
	return s.repo.ListForUser(ctx, callerID)
}

func (s *ServiceImpl) Get(ctx context.Context, callerID, friendshipID uuid.UUID) (*models.Friendship, error) {
	f, err := s.repo.GetByID(ctx, friendshipID)
	if err != nil {
		return nil, err
	}
	if f.UserID != callerID {
		return nil, models.ErrForbidden
	}
	return f, nil
}

func (s *ServiceImpl) Update(ctx context.Context, callerID, friendshipID uuid.UUID, nickname *string, important *bool, groupIDs []uuid.UUID) (*models.Friendship, error) {
	f, err := s.repo.GetByID(ctx, friendshipID)
	if err != nil {
		return nil, err
	}
	if f.UserID != callerID {
		return nil, models.ErrForbidden
	}
	if nickname != nil && utf8.RuneCountInString(*nickname) > maxNicknameLength {
		return nil, fmt.Errorf("nickname exceeds %d characters: %w", maxNicknameLength, models.ErrValidation)
	}

	if nickname != nil || important != nil {
		if _, err := s.repo.Update(ctx, friendshipID, nickname, important); err != nil {
			return nil, err
		}
	}
	if groupIDs != nil {
		if err := s.repo.SetGroups(ctx, friendshipID, callerID, groupIDs); err != nil {
			return nil, err
		}
	}
	return s.repo.GetByID(ctx, friendshipID)
}

func (s *ServiceImpl) Delete(ctx context.Context, callerID, friendshipID uuid.UUID) error {
	f, err := s.repo.GetByID(ctx, friendshipID)
	if err != nil {
		return err
	}
	if f.UserID != callerID {
		return models.ErrForbidden
	}

	mirror, mirrorErr := s.repo.GetByUserAndTarget(ctx, f.TargetID, f.UserID)

	if err := s.repo.DeletePair(ctx, f.ChatroomID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Friendship ended",
		slog.String("friendship_id", friendshipID.String()),
		slog.String("chatroom_id", f.ChatroomID.String()))

	pair := []uuid.UUID{f.UserID, f.TargetID}
	s.notifier.Publish(ctx, []uuid.UUID{f.UserID}, models.Update{
		Model: updates.ModelFriendship,
		ID:    f.ID.String(),
		Event: models.EventDelete,
	})
	if mirrorErr == nil {
		s.notifier.Publish(ctx, []uuid.UUID{mirror.UserID}, models.Update{
			Model: updates.ModelFriendship,
			ID:    mirror.ID.String(),
			Event: models.EventDelete,
		})
	}
	s.notifier.Publish(ctx, pair, models.Update{
		Model: updates.ModelChatroom,
		ID:    f.ChatroomID.String(),
		Event: models.EventDelete,
	})
	return nil
}

func validateGroupName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", models.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxGroupNameLength {
		return fmt.Errorf("name exceeds %d characters: %w", maxGroupNameLength, models.ErrValidation)
	}
	return nil
}

func (s *ServiceImpl) CreateGroup(ctx context.Context, callerID uuid.UUID, name string) (*models.FriendshipGroup, error) {
	if err := validateGroupName(name); err != nil {
		return nil, err
	}
	return s.repo.CreateGroup(ctx, callerID, name)
}

func (s *ServiceImpl) ListGroups(ctx context.Context, callerID uuid.UUID) ([]models.FriendshipGroup, error) {
	return s.repo.ListGroups(ctx, callerID)
}

func (s *ServiceImpl) RenameGroup(ctx context.Context, callerID, groupID uuid.UUID, name string) (*models.FriendshipGroup, error) {
	if err := validateGroupName(name); err != nil {
		return nil, err
	}
	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.UserID != callerID {
		return nil, models.ErrForbidden
	}
	return s.repo.RenameGroup(ctx, groupID, name)
}

func (s *ServiceImpl) DeleteGroup(ctx context.Context, callerID, groupID uuid.UUID) error {
	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g.UserID != callerID {
		return models.ErrForbidden
	}
	return s.repo.DeleteGroup(ctx, groupID)
}

func (s *ServiceImpl) CreateRequest(ctx context.Context, callerID, targetID uuid.UUID, message string) (*models.FriendshipRequest, error) {
	if callerID == targetID {
		return nil, fmt.Errorf("cannot befriend yourself: %w", models.ErrValidation)
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters: %w", maxMessageLength, models.ErrValidation)
	}
	if _, err := s.repo.GetByUserAndTarget(ctx, callerID, targetID); err == nil {
		return nil, fmt.Errorf("already friends: %w", models.ErrConflict)
	}
	// A pending request in the opposite direction also blocks a new one.
	if pending, err := s.hasPending(ctx, targetID, callerID); err == nil && pending {
		return nil, fmt.Errorf("a pending request already exists: %w", models.ErrConflict)
	}

	req, err := s.repo.CreateRequest(ctx, callerID, targetID, message)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Friendship request created",
		slog.String("request_id", req.ID.String()),
		slog.String("target_id", targetID.String()))
	s.notifier.Publish(ctx, []uuid.UUID{targetID}, models.Update{
		Model: updates.ModelFriendshipRequest,
		ID:    req.ID.String(),
		Event: models.EventCreate,
	})
	return req, nil
}

func (s *ServiceImpl) hasPending(ctx context.Context, userID, targetID uuid.UUID) (bool, error) {
	reqs, err := s.repo.ListRequests(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range reqs {
		if r.UserID == userID && r.TargetID == targetID && r.State == models.StatePending {
			return true, nil
		}
	}
	return false, nil
}

func (s *ServiceImpl) ListRequests(ctx context.Context, callerID uuid.UUID) ([]models.FriendshipRequest, error) {
	return s.repo.ListRequests(ctx, callerID)
}

// pendingForTarget loads a request and verifies the caller is its target and
// it is still pending.
func (s *ServiceImpl) pendingForTarget(ctx context.Context, callerID, requestID uuid.UUID) (*models.FriendshipRequest, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.TargetID != callerID {
		return nil, models.ErrForbidden
	}
	if req.State != models.StatePending {
		return nil, fmt.Errorf("request already resolved: %w", models.ErrConflict)
	}
	return req, nil
}

func (s *ServiceImpl) Accept(ctx context.Context, callerID, requestID uuid.UUID) (*models.FriendshipRequest, error) {
	req, err := s.pendingForTarget(ctx, callerID, requestID)
	if err != nil {
		return nil, err
	}

	resolved, f, err := s.repo.AcceptRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Friendship request accepted",
		slog.String("request_id", requestID.String()),
		slog.String("chatroom_id", f.ChatroomID.String()))
	s.notifier.Publish(ctx, []uuid.UUID{req.UserID}, models.Update{
		Model: updates.ModelFriendshipRequest,
		ID:    requestID.String(),
		Event: models.EventUpdate,
	})

	pair := []uuid.UUID{req.UserID, req.TargetID}
	s.notifier.Publish(ctx, []uuid.UUID{f.UserID}, models.Update{
		Model: updates.ModelFriendship,
		ID:    f.ID.String(),
		Event: models.EventCreate,
	})
	if mirror, err := s.repo.GetByUserAndTarget(ctx, req.TargetID, req.UserID); err == nil {
		s.notifier.Publish(ctx, []uuid.UUID{mirror.UserID}, models.Update{
			Model: updates.ModelFriendship,
			ID:    mirror.ID.String(),
			Event: models.EventCreate,
		})
	}
	s.notifier.Publish(ctx, pair, models.Update{
		Model: updates.ModelChatroom,
		ID:    f.ChatroomID.String(),
		Event: models.EventCreate,
	})
	return resolved, nil
}

func (s *ServiceImpl) Reject(ctx context.Context, callerID, requestID uuid.UUID) (*models.FriendshipRequest, error) {
	req, err := s.pendingForTarget(ctx, callerID, requestID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.repo.SetRequestState(ctx, requestID, models.StateRejected)
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, []uuid.UUID{req.UserID}, models.Update{
		Model: updates.ModelFriendshipRequest,
		ID:    requestID.String(),
		Event: models.EventUpdate,
	})
	return resolved, nil
}

func (s *ServiceImpl) Cancel(ctx context.Context, callerID, requestID uuid.UUID) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.UserID != callerID {
		return models.ErrForbidden
	}
	if req.State != models.StatePending {
		return fmt.Errorf("request already resolved: %w", models.ErrConflict)
	}

	if err := s.repo.DeleteRequest(ctx, requestID); err != nil {
		return err
	}
	s.notifier.Publish(ctx, []uuid.UUID{req.TargetID}, models.Update{
		Model: updates.ModelFriendshipRequest,
		ID:    requestID.String(),
		Event: models.EventDelete,
	})
	return nil
}
