package chatroom

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/parlorchat/parlor/internal/app/domain/updates"
	"github.com/parlorchat/parlor/internal/app/models"
)

const maxNameLength = 20

// Notifier publishes update events to the realtime feed.
type Notifier interface {
	Publish(ctx context.Context, userIDs []uuid.UUID, u models.Update)
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	Create(ctx context.Context, creatorID uuid.UUID, name string) (*models.Chatroom, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error)
	// Get returns the room when the caller is a member of it.
	Get(ctx context.Context, callerID, roomID uuid.UUID) (*models.Chatroom, error)
	// Rename requires a manager membership; exclusive rooms are immutable.
	Rename(ctx context.Context, callerID, roomID uuid.UUID, name string) (*models.Chatroom, error)
	// Delete requires the creator; exclusive rooms only vanish with their
	// friendship.
	Delete(ctx context.Context, callerID, roomID uuid.UUID) error
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

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", models.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("name exceeds %d characters: %w", maxNameLength, models.ErrValidation)
	}
	return nil
}

func (s *ServiceImpl) Create(ctx context.Context, creatorID uuid.UUID, name string) (*models.Chatroom, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	room, err := s.repo.Create(ctx, name, creatorID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Chatroom created",
		slog.String("chatroom_id", room.ID.String()),
		slog.String("creator_id", creatorID.String()))
	s.notifier.Publish(ctx, []uuid.UUID{creatorID}, models.Update{
		Model: updates.ModelChatroom,
		ID:    room.ID.String(),
		Event: models.EventCreate,
	})
	return room, nil
}

func (s *ServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *ServiceImpl) Get(ctx context.Context, callerID, roomID uuid.UUID) (*models.Chatroom, error) {
	if _, err := s.repo.GetMembership(ctx, roomID, callerID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, roomID)
}

func (s *ServiceImpl) Rename(ctx context.Context, callerID, roomID uuid.UUID, name string) (*models.Chatroom, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	membership, err := s.repo.GetMembership(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if membership.Exclusive {
		return nil, models.ErrForbidden
	}
	if !membership.IsManager {
		return nil, models.ErrForbidden
	}

	room, err := s.repo.Rename(ctx, roomID, name)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.MemberIDs(ctx, roomID)
	if err == nil {
		s.notifier.Publish(ctx, members, models.Update{
			Model: updates.ModelChatroom,
			ID:    room.ID.String(),
			Event: models.EventUpdate,
		})
	}
	return room, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, callerID, roomID uuid.UUID) error {
	room, err := s.repo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.FriendshipExclusive {
		return models.ErrForbidden
	}
	if room.CreatorID != callerID {
		return models.ErrForbidden
	}

	members, membersErr := s.repo.MemberIDs(ctx, roomID)

	if err := s.repo.Delete(ctx, roomID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Chatroom deleted", slog.String("chatroom_id", roomID.String()))
	if membersErr == nil {
		s.notifier.Publish(ctx, members, models.Update{
			Model: updates.ModelChatroom,
			ID:    roomID.String(),
			Event: models.EventDelete,
		})
	}
	return nil
}
