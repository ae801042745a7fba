package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/parlorchat/parlor/internal/app/domain/updates"
	"github.com/parlorchat/parlor/internal/app/models"
)

const (
	maxGroupNameLength = 20
	maxMessageLength   = 50
)

// Notifier publishes update events to the realtime feed.
type Notifier interface {
	Publish(ctx context.Context, userIDs []uuid.UUID, u models.Update)
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	// List returns the caller's memberships, or a room's roster when
	// chatroomID is set and the caller belongs to the room.
	List(ctx context.Context, callerID uuid.UUID, chatroomID *uuid.UUID) ([]models.ChatroomMembership, error)
	Get(ctx context.Context, callerID, membershipID uuid.UUID) (*models.ChatroomMembership, error)
	// Update patches the caller's own membership. last_read only moves
	// forward; groupIDs, when non-nil, replaces the group assignment.
	Update(ctx context.Context, callerID, membershipID uuid.UUID, lastRead *time.Time, groupIDs []uuid.UUID) (*models.ChatroomMembership, error)
	// SetManager promotes or demotes another member. The caller's level in
	// the room must exceed the target's, and exclusive rooms are immutable.
	SetManager(ctx context.Context, callerID, membershipID uuid.UUID, isManager bool) (*models.ChatroomMembership, error)
	// Delete covers both leaving a room and kicking a lower-level member.
	Delete(ctx context.Context, callerID, membershipID uuid.UUID) error

	CreateGroup(ctx context.Context, callerID uuid.UUID, name string) (*models.MembershipGroup, error)
	ListGroups(ctx context.Context, callerID uuid.UUID) ([]models.MembershipGroup, error)
	RenameGroup(ctx context.Context, callerID, groupID uuid.UUID, name string) (*models.MembershipGroup, error)
	DeleteGroup(ctx context.Context, callerID, groupID uuid.UUID) error

	CreateRequest(ctx context.Context, callerID, chatroomID uuid.UUID, message string) (*models.MembershipRequest, error)
	ListRequests(ctx context.Context, callerID uuid.UUID) ([]models.MembershipRequest, error)
	// Accept resolves a pending request into a membership. Manager only.
	Accept(ctx context.Context, callerID, requestID uuid.UUID) (*models.MembershipRequest, error)
	// Reject marks a pending request rejected. Manager only.
	Reject(ctx context.Context, callerID, requestID uuid.UUID) (*models.MembershipRequest, error)
	// Cancel withdraws the caller's own pending request.
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

func (s *ServiceImpl) List(ctx context.Context, callerID uuid.UUID, chatroomID *uuid.UUID) ([]models.ChatroomMembership, error) {
	if chatroomID == nil {
		return s.repo.ListForUser(ctx, callerID)
	}
	if _, err := s.repo.GetByUserAndChatroom(ctx, callerID, *chatroomID); err != nil {
		return nil, err
	}
	return s.repo.ListForChatroom(ctx, *chatroomID)
}

func (s *ServiceImpl) Get(ctx context.Context, callerID, membershipID uuid.UUID) (*models.ChatroomMembership, error) {
	m, err := s.repo.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.UserID != callerID {
		// Visible to fellow members of the room.
		if _, err := s.repo.GetByUserAndChatroom(ctx, callerID, m.ChatroomID); err != nil {
			return nil, models.ErrForbidden
		}
	}
	return m, nil
}

func (s *ServiceImpl) Update(ctx context.Context, callerID, membershipID uuid.UUID, lastRead *time.Time, groupIDs []uuid.UUID) (*models.ChatroomMembership, error) {
	m, err := s.repo.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.UserID != callerID {
		return nil, models.ErrForbidden
	}

	if lastRead != nil {
		if err := s.repo.AdvanceLastRead(ctx, membershipID, *lastRead); err != nil {
			return nil, err
		}
	}
	if groupIDs != nil {
		if err := s.repo.SetGroups(ctx, membershipID, callerID, groupIDs); err != nil {
			return nil, err
		}
	}
	return s.repo.GetByID(ctx, membershipID)
}

// authority loads the caller's membership in the target's room and checks
// the strict level ordering that promote, demote and kick all require.
func (s *ServiceImpl) authority(ctx context.Context, callerID uuid.UUID, target *models.ChatroomMembership) error {
	if target.Exclusive {
		return models.ErrForbidden
	}
	caller, err := s.repo.GetByUserAndChatroom(ctx, callerID, target.ChatroomID)
	if err != nil {
		return models.ErrForbidden
	}
	if caller.Level <= target.Level {
		return models.ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) SetManager(ctx context.Context, callerID, membershipID uuid.UUID, isManager bool) (*models.ChatroomMembership, error) {
	target, err := s.repo.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if err := s.authority(ctx, callerID, target); err != nil {
		return nil, err
	}
	if target.IsManager == isManager {
		return target, nil
	}

	if err := s.repo.SetManager(ctx, membershipID, isManager); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Membership manager flag changed",
		slog.String("membership_id", membershipID.String()),
		slog.Bool("is_manager", isManager))
	s.publishToRoom(ctx, target.ChatroomID, models.Update{
		Model: updates.ModelMembership,
		ID:    membershipID.String(),
		Event: models.EventUpdate,
	})
	return updated, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, callerID, membershipID uuid.UUID) error {
	target, err := s.repo.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}

	if target.UserID == callerID {
		// Leaving. Exclusive rooms are tied to the friendship.
		if target.Exclusive {
			return models.ErrForbidden
		}
	} else if err := s.authority(ctx, callerID, target); err != nil {
		return err
	}

	members, membersErr := s.repo.MemberIDs(ctx, target.ChatroomID)

	if err := s.repo.Delete(ctx, membershipID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Membership removed",
		slog.String("membership_id", membershipID.String()),
		slog.String("chatroom_id", target.ChatroomID.String()))
	if membersErr == nil {
		s.notifier.Publish(ctx, members, models.Update{
			Model: updates.ModelMembership,
			ID:    membershipID.String(),
			Event: models.EventDelete,
		})
	}
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

func (s *ServiceImpl) CreateGroup(ctx context.Context, callerID uuid.UUID, name string) (*models.MembershipGroup, error) {
	if err := validateGroupName(name); err != nil {
		return nil, err
	}
	return s.repo.CreateGroup(ctx, callerID, name)
}

func (s *ServiceImpl) ListGroups(ctx context.Context, callerID uuid.UUID) ([]models.MembershipGroup, error) {
	return s.repo.ListGroups(ctx, callerID)
}

func (s *ServiceImpl) RenameGroup(ctx context.Context, callerID, groupID uuid.UUID, name string) (*models.MembershipGroup, error) {
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

func (s *ServiceImpl) CreateRequest(ctx context.Context, callerID, chatroomID uuid.UUID, message string) (*models.MembershipRequest, error) {
	if utf8.RuneCountInString(message) > maxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters: %w", maxMessageLength, models.ErrValidation)
	}
	if _, err := s.repo.GetByUserAndChatroom(ctx, callerID, chatroomID); err == nil {
		return nil, fmt.Errorf("already a member: %w", models.ErrConflict)
	}

	req, err := s.repo.CreateRequest(ctx, callerID, chatroomID, message)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Membership request created",
		slog.String("request_id", req.ID.String()),
		slog.String("chatroom_id", chatroomID.String()))
	if managers, err := s.repo.ManagerIDs(ctx, chatroomID); err == nil {
		s.notifier.Publish(ctx, managers, models.Update{
			Model: updates.ModelMembershipRequest,
			ID:    req.ID.String(),
			Event: models.EventCreate,
		})
	}
	return req, nil
}

func (s *ServiceImpl) ListRequests(ctx context.Context, callerID uuid.UUID) ([]models.MembershipRequest, error) {
	return s.repo.ListRequests(ctx, callerID)
}

// pendingManaged loads a request and verifies it is still pending and that
// the caller manages the room it targets.
func (s *ServiceImpl) pendingManaged(ctx context.Context, callerID, requestID uuid.UUID) (*models.MembershipRequest, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	caller, err := s.repo.GetByUserAndChatroom(ctx, callerID, req.ChatroomID)
	if err != nil || !caller.IsManager {
		return nil, models.ErrForbidden
	}
	if req.State != models.StatePending {
		return nil, fmt.Errorf("request already resolved: %w", models.ErrConflict)
	}
	return req, nil
}

func (s *ServiceImpl) Accept(ctx context.Context, callerID, requestID uuid.UUID) (*models.MembershipRequest, error) {
	req, err := s.pendingManaged(ctx, callerID, requestID)
	if err != nil {
		return nil, err
	}

	resolved, m, err := s.repo.AcceptRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Membership request accepted",
		slog.String("request_id", requestID.String()),
		slog.String("membership_id", m.ID.String()))
	s.notifier.Publish(ctx, s.requestAudience(ctx, req, callerID), models.Update{
		Model: updates.ModelMembershipRequest,
		ID:    requestID.String(),
		Event: models.EventUpdate,
	})
	s.publishToRoom(ctx, req.ChatroomID, models.Update{
		Model: updates.ModelMembership,
		ID:    m.ID.String(),
		Event: models.EventCreate,
	})
	return resolved, nil
}

func (s *ServiceImpl) Reject(ctx context.Context, callerID, requestID uuid.UUID) (*models.MembershipRequest, error) {
	req, err := s.pendingManaged(ctx, callerID, requestID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.repo.SetRequestState(ctx, requestID, models.StateRejected)
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, s.requestAudience(ctx, req, callerID), models.Update{
		Model: updates.ModelMembershipRequest,
		ID:    requestID.String(),
		Event: models.EventUpdate,
	})
	return resolved, nil
}

// requestAudience is the request owner plus the room's managers, minus the
// acting user.
func (s *ServiceImpl) requestAudience(ctx context.Context, req *models.MembershipRequest, actorID uuid.UUID) []uuid.UUID {
	audience := []uuid.UUID{req.UserID}
	if managers, err := s.repo.ManagerIDs(ctx, req.ChatroomID); err == nil {
		audience = append(audience, managers...)
	}
	out := audience[:0]
	for _, id := range audience {
		if id != actorID {
			out = append(out, id)
		}
	}
	return out
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
	if managers, err := s.repo.ManagerIDs(ctx, req.ChatroomID); err == nil {
		s.notifier.Publish(ctx, managers, models.Update{
			Model: updates.ModelMembershipRequest,
			ID:    requestID.String(),
			Event: models.EventDelete,
		})
	}
	return nil
}

func (s *ServiceImpl) publishToRoom(ctx context.Context, chatroomID uuid.UUID, u models.Update) {
	members, err := s.repo.MemberIDs(ctx, chatroomID)
	if err != nil {
		s.logger.WarnContext(ctx, "Skipping update fan-out", slog.Any("error", err))
		return
	}
	s.notifier.Publish(ctx, members, u)
}
