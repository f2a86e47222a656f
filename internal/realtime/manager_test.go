package realtime

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsign/notify/internal/model"
	"github.com/adsign/notify/internal/notifytest"
	"github.com/adsign/notify/pkg/logger"
	"github.com/adsign/notify/pkg/metrics"
)

const testToken = "secret-token"

type recorder struct {
	mu    sync.Mutex
	items []model.Notification
}

func (r *recorder) sink(_ model.Kind, n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *recorder) last() model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[len(r.items)-1]
}

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: logger.FatalLevel, Output: io.Discard})
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
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

func newManager(srv *httptest.Server, rec *recorder, opts ...Option) *Manager {
	return NewManager(Config{
		URL:               wsURL(srv),
		ReconnectAttempts: 5,
		ReconnectDelay:    20 * time.Millisecond,
	}, quietLogger(), []Sink{rec.sink}, opts...)
}

func TestOpenRequiresToken(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	mgr := newManager(srv, &recorder{})
	err := mgr.Open(context.Background(), "")

	require.Error(t, err)
	assert.Equal(t, StateDisconnected, mgr.State())
}

func TestOpenRejectsBadToken(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	mgr := newManager(srv, &recorder{})
	err := mgr.Open(context.Background(), "wrong")

	require.Error(t, err)
	assert.Equal(t, StateDisconnected, mgr.State())
}

func TestOpenGuardsAgainstDuplicateConnections(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	mgr := newManager(srv, &recorder{})
	require.NoError(t, mgr.Open(context.Background(), testToken))
	defer mgr.Close()

	err := mgr.Open(context.Background(), testToken)
	require.Error(t, err)

	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })
}

func TestEventsFanOutToAllSinks(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	storeSink := &recorder{}
	toastSink := &recorder{}
	mgr := NewManager(Config{
		URL:               wsURL(srv),
		ReconnectAttempts: 5,
		ReconnectDelay:    20 * time.Millisecond,
	}, quietLogger(), []Sink{storeSink.sink, toastSink.sink})

	require.NoError(t, mgr.Open(context.Background(), testToken))
	defer mgr.Close()
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })

	stub.EmitToUser(model.EventPayload{
		NotificationID: "rt-1",
		Type:           model.TypeOrderStatusChanged,
		Message:        "your order shipped",
	})

	waitFor(t, time.Second, func() bool {
		return storeSink.count() == 1 && toastSink.count() == 1
	})
	got := storeSink.last()
	assert.Equal(t, "rt-1", got.ID)
	assert.Equal(t, model.KindUser, got.Kind)
	assert.False(t, got.IsRead)
}

func TestRoleEventsCarryRoleKind(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	rec := &recorder{}
	mgr := newManager(srv, rec)
	require.NoError(t, mgr.Open(context.Background(), testToken))
	defer mgr.Close()
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })

	stub.EmitToRole(model.EventPayload{NotificationID: "rt-2", Message: "broadcast"})

	waitFor(t, time.Second, func() bool { return rec.count() == 1 })
	assert.Equal(t, model.KindRole, rec.last().Kind)
}

func TestMissingTimestampGetsLocalNow(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &recorder{}
	mgr := newManager(srv, rec, WithClock(func() time.Time { return fixed }))
	require.NoError(t, mgr.Open(context.Background(), testToken))
	defer mgr.Close()
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })

	stub.EmitFrame(model.EventFrame{
		Event: model.EventUserNotification,
		Data:  model.EventPayload{NotificationID: "rt-3", Message: "no timestamp"},
	})

	waitFor(t, time.Second, func() bool { return rec.count() == 1 })
	assert.Equal(t, fixed, rec.last().CreatedAt)
}

func TestDuplicateEventsAreSuppressed(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	rec := &recorder{}
	m := metrics.New("test_dup")
	mgr := newManager(srv, rec, WithMetrics(m))
	require.NoError(t, mgr.Open(context.Background(), testToken))
	defer mgr.Close()
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })

	frame := model.EventFrame{
		Event: model.EventUserNotification,
		Data:  model.EventPayload{NotificationID: "dup-1", Message: "once"},
	}
	stub.EmitFrame(frame)
	stub.EmitFrame(frame)
	stub.EmitFrame(model.EventFrame{
		Event: model.EventUserNotification,
		Data:  model.EventPayload{NotificationID: "dup-2", Message: "other"},
	})

	waitFor(t, time.Second, func() bool { return rec.count() == 2 })
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsDuplicate))
}

func TestUnknownEventNamesAreIgnored(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	rec := &recorder{}
	mgr := newManager(srv, rec)
	require.NoError(t, mgr.Open(context.Background(), testToken))
	defer mgr.Close()
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })

	stub.EmitFrame(model.EventFrame{Event: "typing:indicator", Data: model.EventPayload{NotificationID: "x"}})
	stub.EmitFrame(model.EventFrame{
		Event: model.EventUserNotification,
		Data:  model.EventPayload{NotificationID: "real", Message: "kept"},
	})

	waitFor(t, time.Second, func() bool { return rec.count() == 1 })
	assert.Equal(t, "real", rec.last().ID)
}

func TestReconnectAfterDrop(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	rec := &recorder{}
	mgr := newManager(srv, rec)
	require.NoError(t, mgr.Open(context.Background(), testToken))
	defer mgr.Close()
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })

	stub.DropConnections()

	waitFor(t, 2*time.Second, func() bool { return stub.ConnectionCount() == 1 })
	waitFor(t, 2*time.Second, func() bool { return mgr.State() == StateConnected })

	// Events still flow over the fresh socket.
	stub.EmitToUser(model.EventPayload{NotificationID: "after-drop", Message: "back"})
	waitFor(t, time.Second, func() bool { return rec.count() == 1 })
}

func TestReconnectBound(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())

	m := metrics.New("test_bound")
	mgr := newManager(srv, &recorder{}, WithMetrics(m))
	require.NoError(t, mgr.Open(context.Background(), testToken))
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })

	// Take the backend away entirely; every redial must fail. The listener
	// closes first so the forced drop cannot win a redial race.
	srv.Close()
	stub.DropConnections()

	waitFor(t, 5*time.Second, func() bool { return mgr.State() == StateDisconnected })
	assert.Equal(t, float64(5), testutil.ToFloat64(m.ReconnectAttempts))

	// The bound is final: no further attempts accrue.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, float64(5), testutil.ToFloat64(m.ReconnectAttempts))
	mgr.Close()
}

func TestCloseReleasesConnectionForReopen(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	mgr := newManager(srv, &recorder{})
	require.NoError(t, mgr.Open(context.Background(), testToken))
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })

	mgr.Close()
	assert.Equal(t, StateDisconnected, mgr.State())
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 0 })

	// A fresh session opens a fresh socket.
	require.NoError(t, mgr.Open(context.Background(), testToken))
	defer mgr.Close()
	waitFor(t, time.Second, func() bool { return stub.ConnectionCount() == 1 })
}

func TestCloseIsIdempotent(t *testing.T) {
	stub := notifytest.NewServer(testToken)
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()

	mgr := newManager(srv, &recorder{})
	require.NoError(t, mgr.Open(context.Background(), testToken))

	mgr.Close()
	mgr.Close()
	assert.Equal(t, StateDisconnected, mgr.State())
}
