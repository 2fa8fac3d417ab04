package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterFastAPI/internal/milestone"
	"waterFastAPI/internal/types/fast"
)

func startLiveServer(t *testing.T, hub *LiveHub, userID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := hub.Serve(userID, conn); err != nil {
			conn.Close()
		}
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) LiveFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f LiveFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil skips frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want FrameType) LiveFrame {
	t.Helper()
	for i := 0; i < 50; i++ {
		if f := readFrame(t, conn); f.Type == want {
			return f
		}
	}
	t.Fatalf("no %s frame received", want)
	return LiveFrame{}
}

func TestLiveHub_IdleThenProgress(t *testing.T) {
	svc, st, c := newFastService(t)
	hub := NewLiveHub(st, svc, c, 10*time.Millisecond)
	defer hub.Stop()

	conn := startLiveServer(t, hub, "u1")
	assert.Equal(t, FrameIdle, readFrame(t, conn).Type)

	_, err := svc.Start(context.Background(), "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)
	c.Advance(90 * time.Minute)

	for i := 0; i < 50; i++ {
		f := readUntil(t, conn, FrameProgress)
		require.NotNil(t, f.Fast)
		require.NotNil(t, f.Progress)
		if f.Progress.ElapsedSeconds == 90*60 {
			assert.Equal(t, "Fast begins", f.Progress.CurrentPhase.Title)
			return
		}
	}
	t.Fatal("progress never reached 90 minutes")
}

func TestLiveHub_EmitsMilestoneWhileConnected(t *testing.T) {
	svc, st, c := newFastService(t)
	_, err := svc.Start(context.Background(), "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)
	c.Advance(5 * time.Hour)

	hub := NewLiveHub(st, svc, c, 10*time.Millisecond)
	defer hub.Stop()
	conn := startLiveServer(t, hub, "u1")

	readUntil(t, conn, FrameProgress)
	c.Advance(time.Hour)

	f := readUntil(t, conn, FrameMilestone)
	require.NotNil(t, f.Event)
	assert.Equal(t, milestone.KindMilestone, f.Event.Kind)
	assert.Equal(t, 6, f.Event.ThresholdHours)
}

func TestLiveHub_ClientDisconnectUnregisters(t *testing.T) {
	svc, st, c := newFastService(t)
	hub := NewLiveHub(st, svc, c, 10*time.Millisecond)
	defer hub.Stop()

	conn := startLiveServer(t, hub, "u1")
	readFrame(t, conn)
	assert.Equal(t, 1, hub.Clients())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
