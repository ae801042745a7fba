// Package updates implements the realtime update feed: services publish
// model lifecycle events to interested users, and clients consume them over
// WebSocket or long-poll HTTP. Events for users with no live subscriber are
// buffered with a TTL and handed out on the next poll.
package updates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/parlorchat/parlor/internal/app/models"
	"github.com/parlorchat/parlor/internal/app/observability/metrics"
)

// Model names used in update events.
const (
	ModelMessage           = "message"
	ModelChatroom          = "chatroom"
	ModelMembership        = "chatroom_membership"
	ModelMembershipRequest = "chatroom_membership_request"
	ModelFriendship        = "friendship"
	ModelFriendshipRequest = "friendship_request"
)

const (
	subscriberBuffer = 32
	pendingTTL       = 24 * time.Hour
	pendingSweep     = 10 * time.Minute
)

type subscriber struct {
	ch chan models.Update
}

// Subscription is one live consumer of a user's update stream.
type Subscription struct {
	C      <-chan models.Update
	cancel func()
	once   sync.Once
}

// Close detaches the subscription from the hub. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Hub fans update events out to per-user subscribers.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]map[*subscriber]struct{}

	// pending buffers updates for users with no live subscriber,
	// keyed by user id string.
	pending *cache.Cache
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		subs:    make(map[uuid.UUID]map[*subscriber]struct{}),
		pending: cache.New(pendingTTL, pendingSweep),
	}
}

// Publish delivers the update to every live subscriber of each user, or
// buffers it when a user has none. Duplicate user ids are collapsed.
func (h *Hub) Publish(ctx context.Context, userIDs []uuid.UUID, u models.Update) {
	seen := make(map[uuid.UUID]struct{}, len(userIDs))

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		subs := h.subs[userID]
		if len(subs) == 0 {
			h.buffer(userID, u)
			if m := metrics.Get(); m != nil {
				m.UpdatesBufferedTotal.Add(ctx, 1)
			}
			continue
		}
		for sub := range subs {
			select {
			case sub.ch <- u:
			default:
				// Slow consumer: drop rather than block the publisher.
				h.logger.WarnContext(ctx, "Dropping update for slow subscriber",
					slog.String("user_id", userID.String()),
					slog.String("model", u.Model))
			}
		}
		if m := metrics.Get(); m != nil {
			m.UpdatesPublishedTotal.Add(ctx, 1)
		}
	}
}

func (h *Hub) buffer(userID uuid.UUID, u models.Update) {
	key := userID.String()
	var buffered []models.Update
	if v, ok := h.pending.Get(key); ok {
		buffered = v.([]models.Update)
	}
	h.pending.Set(key, append(buffered, u), cache.DefaultExpiration)
}

// Subscribe attaches a live consumer for the user's updates.
func (h *Hub) Subscribe(userID uuid.UUID) *Subscription {
	sub := &subscriber{ch: make(chan models.Update, subscriberBuffer)}

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return &Subscription{
		C: sub.ch,
		cancel: func() {
			h.mu.Lock()
			delete(h.subs[userID], sub)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
		},
	}
}

// Drain returns and clears the user's buffered updates.
func (h *Hub) Drain(userID uuid.UUID) []models.Update {
	key := userID.String()
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.pending.Get(key)
	if !ok {
		return nil
	}
	h.pending.Delete(key)
	return v.([]models.Update)
}

// Next returns the user's buffered updates if any, otherwise blocks up to
// timeout for the next published update. A nil slice means the wait timed
// out or the context was canceled.
func (h *Hub) Next(ctx context.Context, userID uuid.UUID, timeout time.Duration) []models.Update {
	if buffered := h.Drain(userID); len(buffered) > 0 {
		return buffered
	}

	sub := h.Subscribe(userID)
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case u := <-sub.C:
		out := []models.Update{u}
		// Grab anything else already queued without blocking.
		for {
			select {
			case more := <-sub.C:
				out = append(out, more)
			default:
				return out
			}
		}
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}
