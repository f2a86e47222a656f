package pipeline_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsign/notify/internal/client"
	"github.com/adsign/notify/internal/model"
	"github.com/adsign/notify/internal/notifytest"
	"github.com/adsign/notify/internal/realtime"
	feedService "github.com/adsign/notify/internal/service/feed"
	"github.com/adsign/notify/internal/store"
	"github.com/adsign/notify/internal/toast"
	"github.com/adsign/notify/internal/token"
	"github.com/adsign/notify/pkg/logger"
)

const testToken = "secret-token"

type pipeline struct {
	stub    *notifytest.Server
	store   *store.Store
	toaster *toast.Toaster
	feed    *feedService.Service
	manager *realtime.Manager
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	log := logger.New(&logger.Config{Level: logger.FatalLevel, Output: io.Discard})

	restClient := client.New(srv.URL, 5*time.Second, token.Static(testToken))
	t.Cleanup(func() { restClient.Close() })

	notifications := store.New()
	toaster := toast.New(toast.WithTTL(time.Minute))
	t.Cleanup(toaster.Close)

	manager := realtime.NewManager(
		realtime.Config{
			URL:               "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
			ReconnectAttempts: 5,
			ReconnectDelay:    20 * time.Millisecond,
		},
		log,
		[]realtime.Sink{
			func(kind model.Kind, n model.Notification) {
				notifications.PrependRealtime(kind, n)
			},
			func(_ model.Kind, n model.Notification) {
				toaster.Push(n)
			},
		},
	)
	require.NoError(t, manager.Open(context.Background(), testToken))
	t.Cleanup(manager.Close)

	return &pipeline{
		stub:    stub,
		store:   notifications,
		toaster: toaster,
		feed:    feedService.NewService(restClient, notifications, log),
		manager: manager,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func seedNotification(id string, read bool, createdAt time.Time) model.Notification {
	return model.Notification{
		ID:        id,
		Type:      model.TypeOrderStatusChanged,
		Message:   "order update " + id,
		IsRead:    read,
		CreatedAt: createdAt,
	}
}

// The reference scenario: a fetched page of 3 unread + 2 read items, then a
// realtime arrival, then marking that arrival read.
func TestFetchRealtimeMarkReadScenario(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	p.stub.Seed(model.KindUser,
		seedNotification("n1", false, base.Add(5*time.Minute)),
		seedNotification("n2", false, base.Add(4*time.Minute)),
		seedNotification("n3", false, base.Add(3*time.Minute)),
		seedNotification("n4", true, base.Add(2*time.Minute)),
		seedNotification("n5", true, base.Add(time.Minute)),
	)

	require.NoError(t, p.feed.LoadPage(ctx, model.KindUser, client.FetchOptions{Page: 1, Size: 10}))
	assert.Equal(t, 3, p.store.UnreadCount(model.KindUser))

	waitFor(t, time.Second, func() bool { return p.stub.ConnectionCount() == 1 })
	p.stub.EmitToUser(model.EventPayload{
		NotificationID: "rt-1",
		Type:           model.TypePaymentReceived,
		Message:        "payment received for order 17",
	})

	waitFor(t, time.Second, func() bool {
		return len(p.store.Collection(model.KindUser).Items) == 6
	})
	col := p.store.Collection(model.KindUser)
	assert.Equal(t, 4, col.UnreadCount)
	assert.Equal(t, "rt-1", col.Items[0].ID)

	// The arrival also raised a toast, independent of the store.
	toasts := p.toaster.Active()
	require.Len(t, toasts, 1)
	assert.Equal(t, "payment received for order 17", toasts[0].Message)

	require.NoError(t, p.feed.MarkRead(ctx, "rt-1"))
	col = p.store.Collection(model.KindUser)
	assert.Equal(t, 3, col.UnreadCount)
	assert.True(t, col.Items[0].IsRead)

	// Dismissing the toast never touches the store.
	p.toaster.Dismiss(toasts[0].ID)
	assert.Empty(t, p.toaster.Active())
	assert.Len(t, p.store.Collection(model.KindUser).Items, 6)
}

func TestRoleBroadcastReachesFeedAndBadge(t *testing.T) {
	p := newPipeline(t)
	waitFor(t, time.Second, func() bool { return p.stub.ConnectionCount() == 1 })

	p.stub.EmitToRole(model.EventPayload{
		NotificationID: "role-rt",
		Type:           model.TypeGeneral,
		Message:        "policy update for designers",
	})

	waitFor(t, time.Second, func() bool { return p.feed.UnreadCount() == 1 })
	view := p.feed.View(1, 10)
	require.Len(t, view, 1)
	assert.Equal(t, model.KindRole, view[0].Kind)
}

func TestSendToUserRoundTrip(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	waitFor(t, time.Second, func() bool { return p.stub.ConnectionCount() == 1 })

	require.NoError(t, p.feed.SendToUser(ctx, "u-9", "your proof is ready"))

	// The send comes straight back over the realtime channel.
	waitFor(t, time.Second, func() bool {
		return len(p.store.Collection(model.KindUser).Items) == 1
	})
	assert.Equal(t, "your proof is ready", p.store.Collection(model.KindUser).Items[0].Message)

	// And it is persisted for the next fetch.
	require.NoError(t, p.feed.LoadPage(ctx, model.KindUser, client.FetchOptions{Page: 1, Size: 10}))
	assert.Len(t, p.store.Collection(model.KindUser).Items, 1)
}

func TestRealtimeSurvivesDropThenDelivers(t *testing.T) {
	p := newPipeline(t)
	waitFor(t, time.Second, func() bool { return p.stub.ConnectionCount() == 1 })

	p.stub.DropConnections()
	waitFor(t, 2*time.Second, func() bool { return p.stub.ConnectionCount() == 1 })
	waitFor(t, 2*time.Second, func() bool { return p.manager.State() == realtime.StateConnected })

	p.stub.EmitToUser(model.EventPayload{NotificationID: "after", Message: "still here"})
	waitFor(t, time.Second, func() bool { return p.feed.UnreadCount() == 1 })
}
