package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"ctonjob/internal/database"
	"ctonjob/internal/events"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocketForwardsOwnNotifications(t *testing.T) {
	env := newTestEnv(t)
	token := env.user("U1", database.RoleCandidate)
	conn := dialWS(t, env)

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	var welcome events.Notification
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != "connected" {
		t.Fatalf("expected connected notification, got %+v (%v)", welcome, err)
	}

	client := redis.NewClient(&redis.Options{Addr: env.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	notifier := events.NewRedisNotifier(client)
	ctx := t.Context()
	if err := notifier.Notify(ctx, "U2", events.Notification{Type: "application_status", ResourceID: 1}); err != nil {
		t.Fatalf("notify U2: %v", err)
	}
	if err := notifier.Notify(ctx, "U1", events.Notification{Type: "application_status", ResourceID: 7, Status: "acceptee"}); err != nil {
		t.Fatalf("notify U1: %v", err)
	}

	var got events.Notification
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if got.ResourceID != 7 || got.Status != "acceptee" {
		t.Fatalf("received another user's notification: %+v", got)
	}
}

func TestWebSocketRejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.user("U1", database.RoleCandidate)
	pair, err := env.auth.GenerateTokenPair("U1", false)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	conn := dialWS(t, env)

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": pair.RefreshToken}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	check := originChecker([]string{"https://app.example.fr/"})
	cases := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{"https://app.example.fr", true},
		{"https://evil.example", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://api.example.fr/v1/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := check(r); got != tc.ok {
			t.Errorf("origin %q: got %v, want %v", tc.origin, got, tc.ok)
		}
	}

	sameOrigin := originChecker(nil)
	r := httptest.NewRequest(http.MethodGet, "http://api.example.fr/v1/ws", nil)
	r.Header.Set("Origin", "https://api.example.fr")
	if !sameOrigin(r) {
		t.Fatal("same origin must be accepted when no origins are configured")
	}
}
