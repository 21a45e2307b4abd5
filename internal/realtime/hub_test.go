package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncway/internal/domain"
	internalRedis "syncway/internal/redis"
)

type fakePresence struct {
	mu     sync.Mutex
	online map[string]map[string]struct{}
	beats  int
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[string]map[string]struct{})}
}

func (p *fakePresence) Connect(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.online[userID] == nil {
		p.online[userID] = make(map[string]struct{})
	}
	p.online[userID][connID] = struct{}{}
	return nil
}

func (p *fakePresence) Heartbeat(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beats++
	return nil
}

func (p *fakePresence) Disconnect(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online[userID], connID)
	if len(p.online[userID]) == 0 {
		delete(p.online, userID)
	}
	return nil
}

func (p *fakePresence) Count(context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(len(p.online)), nil
}

func (p *fakePresence) isOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.online[userID]) > 0
}

func (p *fakePresence) heartbeats() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.beats
}

func newRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func startHub(t *testing.T, rdb *redis.Client, presence Presence, allowedOrigins []string) (*Hub, *httptest.Server) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(rdb, presence, logger, allowedOrigins)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	select {
	case <-hub.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not subscribe")
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func setupHub(t *testing.T) (*Hub, *fakePresence, *httptest.Server) {
	presence := newFakePresence()
	hub, srv := startHub(t, newRedis(t), presence, nil)
	return hub, presence, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads until a message named event arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub, _, srv := setupHub(t)
	a := dial(t, srv, "u1")
	b := dial(t, srv, "u2")
	require.Eventually(t, func() bool { return hub.LocalConnections() == 2 }, 2*time.Second, 10*time.Millisecond)

	ride := (&domain.Ride{ID: "ride-1", Status: domain.RideStatusPending}).View()
	require.NoError(t, hub.Broadcast(context.Background(), domain.EventNewRideAvailable, ride))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readEvent(t, conn, domain.EventNewRideAvailable)
		var got domain.RideView
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "ride-1", got.ID)
		assert.Equal(t, "pending", got.Status)
	}
}

func TestHub_NotifyTargetsOneUser(t *testing.T) {
	hub, _, srv := setupHub(t)
	target := dial(t, srv, "u1")
	other := dial(t, srv, "u2")
	require.Eventually(t, func() bool { return hub.LocalConnections() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(context.Background(), "u1", domain.EventRideClaimed, map[string]string{"id": "ride-1"}))
	// A broadcast sent afterwards marks the point where u2 would have seen the notify.
	require.NoError(t, hub.Broadcast(context.Background(), domain.EventRideRemovedFromAvailable, "ride-1"))

	msg := readEvent(t, target, domain.EventRideClaimed)
	assert.JSONEq(t, `{"id":"ride-1"}`, string(msg.Data))

	require.NoError(t, other.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, other.ReadJSON(&msg))
		require.NotEqual(t, domain.EventRideClaimed, msg.Event, "notify leaked to another user")
		if msg.Event == domain.EventRideRemovedFromAvailable {
			assert.JSONEq(t, `"ride-1"`, string(msg.Data))
			break
		}
	}
}

func TestHub_PresenceFollowsConnections(t *testing.T) {
	hub, presence, srv := setupHub(t)
	conn := dial(t, srv, "u1")

	msg := readEvent(t, conn, domain.EventOnlineUsersUpdate)
	var online domain.OnlineUsers
	require.NoError(t, json.Unmarshal(msg.Data, &online))
	assert.Equal(t, int64(1), online.OnlineCount)
	assert.True(t, presence.isOnline("u1"))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "heartbeat"}))
	require.Eventually(t, func() bool { return presence.heartbeats() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !presence.isOnline("u1") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.LocalConnections())
}

func TestHub_UserStaysOnlineWhileConnectedToAnotherReplica(t *testing.T) {
	rdb := newRedis(t)
	store := internalRedis.NewPresenceStore(rdb, time.Minute)
	hubA, srvA := startHub(t, rdb, store, nil)
	hubB, srvB := startHub(t, rdb, store, nil)

	onA := dial(t, srvA, "drv")
	dial(t, srvB, "drv")
	require.Eventually(t, func() bool {
		return hubA.LocalConnections() == 1 && hubB.LocalConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, onA.Close())
	require.Eventually(t, func() bool { return hubA.LocalConnections() == 0 }, 2*time.Second, 10*time.Millisecond)

	// The disconnect on A has been applied; B's socket keeps the driver online.
	require.Eventually(t, func() bool {
		members, err := rdb.ZCard(context.Background(), "presence:online").Result()
		return err == nil && members == 1
	}, 2*time.Second, 10*time.Millisecond)
	ids, err := store.OnlineUserIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"drv"}, ids)
}

func TestHub_RejectsUnlistedOrigin(t *testing.T) {
	_, srv := startHub(t, newRedis(t), newFakePresence(), []string{"https://app.syncway.io"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user_id=u1"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.syncway.io")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestHub_RequiresUserID(t *testing.T) {
	_, _, srv := setupHub(t)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_NotifyRejectsEmptyTarget(t *testing.T) {
	hub, _, _ := setupHub(t)
	assert.Error(t, hub.Notify(context.Background(), "", domain.EventRideClaimed, nil))
}
