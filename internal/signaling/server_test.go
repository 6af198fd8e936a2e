package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nisarg284/cozy-discussions-hub/internal/metrics"
)

func testServerConfig() Config {
	return Config{
		AllowedOrigins:       []string{"http://localhost:5173"},
		PingInterval:         25 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            5 * time.Second,
		MaxMessageBytes:      64 * 1024,
		MaxMessagesPerSecond: 0, // no limiter unless a test opts in
		SendQueueSize:        16,
	}
}

func startSignalingServer(t *testing.T, cfg Config) (wsURL string, m *metrics.Metrics) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m = metrics.New()
	hub := NewHub(log, m)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	ts := httptest.NewServer(NewServer(hub, log, cfg))
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return "ws" + strings.TrimPrefix(ts.URL, "http"), m
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestSignalingSession(t *testing.T) {
	wsURL, m := startSignalingServer(t, testServerConfig())

	alice := dial(t, wsURL)
	bob := dial(t, wsURL)

	send(t, alice, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Alice"})
	// Alice must be registered in the room before Bob joins, or the
	// user-joined notification has no recipient. Bob's join is ordered after
	// Alice's because both flow through the hub; but the two writes race on
	// the network, so wait for the server to apply Alice's join first.
	time.Sleep(50 * time.Millisecond)
	send(t, bob, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Bob"})

	joined := recv(t, alice)
	if joined["type"] != TypeUserJoined || joined["name"] != "Bob" {
		t.Fatalf("event=%v", joined)
	}
	bobID, _ := joined["id"].(string)
	if bobID == "" {
		t.Fatalf("user-joined missing id: %v", joined)
	}

	// Offer flows Alice -> Bob with the sender id attached.
	send(t, alice, map[string]any{
		"type":   "offer",
		"roomId": "study-1",
		"offer":  map[string]any{"type": "offer", "sdp": "v=0\r\n"},
	})
	offer := recv(t, bob)
	if offer["type"] != TypeOffer || offer["roomId"] != "study-1" {
		t.Fatalf("event=%v", offer)
	}
	aliceID, _ := offer["from"].(string)
	if aliceID == "" || aliceID == bobID {
		t.Fatalf("offer from=%q, want Alice's id", aliceID)
	}
	if _, ok := offer["offer"].(map[string]any); !ok {
		t.Fatalf("offer payload missing: %v", offer)
	}

	// Answer flows back Bob -> Alice.
	send(t, bob, map[string]any{
		"type":   "answer",
		"roomId": "study-1",
		"answer": map[string]any{"type": "answer", "sdp": "v=0\r\n"},
	})
	answer := recv(t, alice)
	if answer["type"] != TypeAnswer || answer["from"] != bobID {
		t.Fatalf("event=%v", answer)
	}

	// Candidates relay in both directions.
	send(t, alice, map[string]any{
		"type":      "ice-candidate",
		"roomId":    "study-1",
		"candidate": map[string]any{"candidate": "candidate:1 1 udp 1 127.0.0.1 50000 typ host"},
	})
	candidate := recv(t, bob)
	if candidate["type"] != TypeICECandidate || candidate["from"] != aliceID {
		t.Fatalf("event=%v", candidate)
	}

	// Leaving notifies the peer.
	send(t, bob, map[string]any{"type": "leave-room", "roomId": "study-1"})
	left := recv(t, alice)
	if left["type"] != TypeUserLeft || left["id"] != bobID || left["name"] != "Bob" {
		t.Fatalf("event=%v", left)
	}

	if got := m.Get(metrics.RelayedOffer); got != 1 {
		t.Fatalf("relayed_offer=%d, want 1", got)
	}
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	wsURL, _ := startSignalingServer(t, testServerConfig())

	alice := dial(t, wsURL)
	bob := dial(t, wsURL)

	send(t, alice, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Alice"})
	time.Sleep(50 * time.Millisecond)
	send(t, bob, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Bob"})
	recv(t, alice) // Bob's user-joined

	// An abrupt close must produce the same cleanup as an explicit leave.
	bob.Close()

	left := recv(t, alice)
	if left["type"] != TypeUserLeft || left["name"] != "Bob" {
		t.Fatalf("event=%v", left)
	}
}

func TestMalformedMessagesAreTolerated(t *testing.T) {
	wsURL, m := startSignalingServer(t, testServerConfig())

	alice := dial(t, wsURL)
	bob := dial(t, wsURL)

	send(t, alice, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Alice"})
	time.Sleep(50 * time.Millisecond)

	// Garbage and unknown types are dropped without closing the connection.
	if err := bob.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, bob, map[string]any{"type": "shout", "roomId": "study-1"})
	send(t, bob, map[string]any{"type": "offer", "roomId": "study-1"}) // missing payload

	send(t, bob, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Bob"})
	joined := recv(t, alice)
	if joined["type"] != TypeUserJoined || joined["name"] != "Bob" {
		t.Fatalf("event=%v", joined)
	}

	if got := m.Get(metrics.DropBadMessage); got != 3 {
		t.Fatalf("drop_bad_message=%d, want 3", got)
	}
}

func TestUpgradeRejectsDisallowedOrigin(t *testing.T) {
	wsURL, _ := startSignalingServer(t, testServerConfig())

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp=%v, want 403", resp)
	}
}

func TestUpgradeAllowsListedOrigin(t *testing.T) {
	wsURL, _ := startSignalingServer(t, testServerConfig())

	header := http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestRateLimitDropsExcessMessages(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxMessagesPerSecond = 5
	wsURL, m := startSignalingServer(t, cfg)

	alice := dial(t, wsURL)
	bob := dial(t, wsURL)
	send(t, alice, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Alice"})
	time.Sleep(50 * time.Millisecond)
	send(t, bob, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Bob"})
	recv(t, alice)

	// Burst far past the limit; the extra candidates are dropped, not fatal.
	for i := 0; i < 50; i++ {
		send(t, bob, map[string]any{
			"type":      "ice-candidate",
			"roomId":    "study-1",
			"candidate": map[string]any{"candidate": "candidate:1"},
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Get(metrics.DropRateLimited) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected drop_rate_limited to be counted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The connection survives and still relays. Some candidates got through
	// before the bucket drained, so read until the leave shows up.
	time.Sleep(1100 * time.Millisecond) // refill
	send(t, bob, map[string]any{"type": "leave-room", "roomId": "study-1"})
	for {
		ev := recv(t, alice)
		if ev["type"] == TypeUserLeft {
			break
		}
		if ev["type"] != TypeICECandidate {
			t.Fatalf("event=%v", ev)
		}
	}
}

func TestServerPingsKeepIdleConnectionAlive(t *testing.T) {
	cfg := testServerConfig()
	cfg.PingInterval = 100 * time.Millisecond
	cfg.PongWait = 300 * time.Millisecond
	wsURL, _ := startSignalingServer(t, cfg)

	alice := dial(t, wsURL)
	send(t, alice, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Alice"})

	// The client's default ping handler answers server pings while a read is
	// in flight, so an otherwise idle connection outlives several pong waits.
	_ = alice.SetReadDeadline(time.Now().Add(1500 * time.Millisecond))
	var ev map[string]any
	err := alice.ReadJSON(&ev)
	if err == nil {
		t.Fatalf("unexpected event while idle: %v", ev)
	}
	if !strings.Contains(err.Error(), "timeout") && !strings.Contains(err.Error(), "deadline") {
		t.Fatalf("read ended with %v, want local deadline (connection still alive)", err)
	}

	// The connection is still registered: a late joiner is announced to it.
	_ = alice.SetReadDeadline(time.Time{})
	bob := dial(t, wsURL)
	send(t, bob, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Bob"})
	joined := recv(t, alice)
	if joined["type"] != TypeUserJoined || joined["name"] != "Bob" {
		t.Fatalf("event=%v", joined)
	}
}

func TestUnresponsiveConnectionIsDropped(t *testing.T) {
	cfg := testServerConfig()
	cfg.PingInterval = 100 * time.Millisecond
	cfg.PongWait = 250 * time.Millisecond
	wsURL, _ := startSignalingServer(t, cfg)

	alice := dial(t, wsURL)
	bob := dial(t, wsURL)
	send(t, alice, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Alice"})
	time.Sleep(50 * time.Millisecond)
	send(t, bob, map[string]any{"type": "join-room", "roomId": "study-1", "name": "Bob"})
	recv(t, alice)

	// Bob stops reading entirely: no reads means no pong replies, so the
	// server's pong wait expires and cleanup runs as if Bob vanished.
	left := recv(t, alice)
	if left["type"] != TypeUserLeft || left["name"] != "Bob" {
		t.Fatalf("event=%v", left)
	}
}
