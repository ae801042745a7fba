package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/parlorchat/parlor/internal/app/observability/metrics"

	"github.com/parlorchat/parlor/internal/app/domain/updates"
	"github.com/parlorchat/parlor/internal/app/models"
)

const (
	maxTextLength    = 1000
	defaultListLimit = 100
	maxListLimit     = 500
)

// Feed is the realtime side of the hub: fan-out for new messages and
// subscriptions for long-poll waiters.
type Feed interface {
	Publish(ctx context.Context, userIDs []uuid.UUID, u models.Update)
	Subscribe(userID uuid.UUID) *updates.Subscription
}

// Query is the filter for List.
type Query struct {
	Since      int64
	ChatroomID *uuid.UUID
	Limit      int
	// Wait blocks until a message arrives or the poll window closes when
	// the first pass comes back empty.
	Wait bool
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	Send(ctx context.Context, callerID, chatroomID uuid.UUID, text string) (*models.Message, error)
	List(ctx context.Context, callerID uuid.UUID, q Query) ([]models.Message, error)
}

type ServiceImpl struct {
	repo        Repository
	feed        Feed
	logger      *slog.Logger
	quota       int
	pollTimeout time.Duration
}

func NewService(repo Repository, feed Feed, quota int, pollTimeout time.Duration, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		repo:        repo,
		feed:        feed,
		logger:      logger,
		quota:       quota,
		pollTimeout: pollTimeout,
	}
}

func (s *ServiceImpl) Send(ctx context.Context, callerID, chatroomID uuid.UUID, text string) (*models.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required: %w", models.ErrValidation)
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return nil, fmt.Errorf("text exceeds %d characters: %w", maxTextLength, models.ErrValidation)
	}

	membership, err := s.repo.GetMembership(ctx, callerID, chatroomID)
	if err != nil {
		return nil, models.ErrForbidden
	}

	msg, err := s.repo.Create(ctx, chatroomID, membership.ID, text)
	if err != nil {
		return nil, err
	}
	msg.SenderID = callerID

	if err := s.repo.Trim(ctx, chatroomID, s.quota); err != nil {
		s.logger.WarnContext(ctx, "Message retention trim failed",
			slog.String("chatroom_id", chatroomID.String()),
			slog.Any("error", err))
	}

	if m := metrics.Get(); m != nil {
		m.MessagesSentTotal.Add(ctx, 1)
	}

	members, err := s.repo.MemberIDs(ctx, chatroomID)
	if err == nil {
		recipients := members[:0]
		for _, id := range members {
			if id != callerID {
				recipients = append(recipients, id)
			}
		}
		s.feed.Publish(ctx, recipients, models.Update{
			Model: updates.ModelMessage,
			ID:    fmt.Sprintf("%d", msg.ID),
			Event: models.EventCreate,
		})
	}
	return msg, nil
}

func (s *ServiceImpl) List(ctx context.Context, callerID uuid.UUID, q Query) ([]models.Message, error) {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.ChatroomID != nil {
		if _, err := s.repo.GetMembership(ctx, callerID, *q.ChatroomID); err != nil {
			return nil, models.ErrForbidden
		}
	}

	// Subscribe before the first query so a message landing in between is
	// not missed.
	var sub *updates.Subscription
	if q.Wait {
		sub = s.feed.Subscribe(callerID)
		defer sub.Close()
	}

	messages, err := s.repo.List(ctx, callerID, q.Since, q.ChatroomID, q.Limit)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 || !q.Wait {
		if messages == nil {
			messages = []models.Message{}
		}
		return messages, nil
	}

	timer := time.NewTimer(s.pollTimeout)
	defer timer.Stop()
	for {
		select {
		case u := <-sub.C:
			if u.Model != updates.ModelMessage || u.Event != models.EventCreate {
				continue
			}
			messages, err = s.repo.List(ctx, callerID, q.Since, q.ChatroomID, q.Limit)
			if err != nil {
				return nil, err
			}
			if len(messages) > 0 {
				return messages, nil
			}
		case <-timer.C:
			return []models.Message{}, nil
		case <-ctx.Done():
			return []models.Message{}, nil
		}
	}
}
