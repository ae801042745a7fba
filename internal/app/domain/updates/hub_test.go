package updates

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/app/models"
)

func newTestHub() *Hub {
	return NewHub(slog.Default())
}

func TestHubDeliversToLiveSubscriber(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	sub := hub.Subscribe(userID)
	defer sub.Close()

	u := models.Update{Model: ModelMessage, ID: "42", Event: models.EventCreate}
	hub.Publish(context.Background(), []uuid.UUID{userID}, u)

	select {
	case got := <-sub.C:
		assert.Equal(t, u, got)
	case <-time.After(time.Second):
		t.Fatal("update was not delivered")
	}
}

func TestHubFansOutToAllSubscribers(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	first := hub.Subscribe(userID)
	defer first.Close()
	second := hub.Subscribe(userID)
	defer second.Close()

	u := models.Update{Model: ModelChatroom, ID: uuid.NewString(), Event: models.EventUpdate}
	hub.Publish(context.Background(), []uuid.UUID{userID}, u)

	for _, sub := range []*Subscription{first, second} {
		select {
		case got := <-sub.C:
			assert.Equal(t, u, got)
		case <-time.After(time.Second):
			t.Fatal("update was not delivered to every subscriber")
		}
	}
}

func TestHubCollapsesDuplicateUserIDs(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	sub := hub.Subscribe(userID)
	defer sub.Close()

	u := models.Update{Model: ModelFriendship, ID: uuid.NewString(), Event: models.EventDelete}
	hub.Publish(context.Background(), []uuid.UUID{userID, userID}, u)

	<-sub.C
	select {
	case <-sub.C:
		t.Fatal("duplicate user id produced a second delivery")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBuffersForOfflineUser(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	first := models.Update{Model: ModelMessage, ID: "1", Event: models.EventCreate}
	second := models.Update{Model: ModelMessage, ID: "2", Event: models.EventCreate}
	hub.Publish(context.Background(), []uuid.UUID{userID}, first)
	hub.Publish(context.Background(), []uuid.UUID{userID}, second)

	buffered := hub.Drain(userID)
	require.Equal(t, []models.Update{first, second}, buffered)

	// A second drain must come back empty.
	assert.Nil(t, hub.Drain(userID))
}

func TestHubNext(t *testing.T) {
	t.Run("returns buffered updates immediately", func(t *testing.T) {
		hub := newTestHub()
		userID := uuid.New()
		u := models.Update{Model: ModelMembership, ID: uuid.NewString(), Event: models.EventCreate}
		hub.Publish(context.Background(), []uuid.UUID{userID}, u)

		got := hub.Next(context.Background(), userID, time.Second)
		assert.Equal(t, []models.Update{u}, got)
	})

	t.Run("wakes on a published update", func(t *testing.T) {
		hub := newTestHub()
		userID := uuid.New()
		u := models.Update{Model: ModelMessage, ID: "7", Event: models.EventCreate}

		go func() {
			time.Sleep(20 * time.Millisecond)
			hub.Publish(context.Background(), []uuid.UUID{userID}, u)
		}()

		got := hub.Next(context.Background(), userID, 2*time.Second)
		assert.Equal(t, []models.Update{u}, got)
	})

	t.Run("times out with nil", func(t *testing.T) {
		hub := newTestHub()
		got := hub.Next(context.Background(), uuid.New(), 20*time.Millisecond)
		assert.Nil(t, got)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		hub := newTestHub()
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		got := hub.Next(ctx, uuid.New(), time.Minute)
		assert.Nil(t, got)
	})
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()
	sub := hub.Subscribe(userID)
	sub.Close()
	sub.Close()

	// Publishing after close buffers instead of delivering.
	u := models.Update{Model: ModelMessage, ID: "9", Event: models.EventCreate}
	hub.Publish(context.Background(), []uuid.UUID{userID}, u)
	assert.Equal(t, []models.Update{u}, hub.Drain(userID))
}
