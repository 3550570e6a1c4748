package arenaclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/broadcast"
	"github.com/park285/cheese-arena/internal/httpapi"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/jsonclient"
	"github.com/park285/cheese-arena/internal/wsserver"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func newArena(t *testing.T) *httptest.Server {
	t.Helper()
	router := broadcast.NewRouter(64, nil)
	c, err := arena.NewCoordinator(arena.Deps{Notifier: router, Coin: func() bool { return true }})
	if err != nil { t.Fatalf("NewCoordinator: %v", err) }
	hub := arena.NewHub(context.Background(), c, time.Hour, nil)
	t.Cleanup(hub.Close)
	iss, err := identity.NewIssuer("test-secret", time.Hour)
	if err != nil { t.Fatalf("NewIssuer: %v", err) }
	api := httpapi.New(httpapi.Deps{Hub: hub, Issuer: iss, AllowDevAuth: true})
	ws := wsserver.New(hub, router, api.Authenticate, wsserver.WithPingInterval(time.Hour))
	srv := httptest.NewServer(api.Routes(ws))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":         "ws://localhost:8080/ws",
		"https://arena.example.com/x?y": "wss://arena.example.com/ws",
	}
	for in, want := range cases {
		got, err := WSURL(in)
		if err != nil || got != want { t.Fatalf("WSURL(%q)=%q,%v want %q", in, got, err, want) }
	}
}

func TestRESTFlow(t *testing.T) {
	srv := newArena(t)
	ctx := context.Background()
	c := New(srv.URL, 2*time.Second)
	if err := c.Health(ctx); err != nil { t.Fatalf("health: %v", err) }
	if _, err := c.Me(ctx); !jsonclient.IsStatus(err, http.StatusUnauthorized) || jsonclient.CodeOf(err) != "unauthorized" { t.Fatalf("expected 401 before sign in, got %v", err) }

	auth, err := c.DevSignIn(ctx, "alice")
	if err != nil { t.Fatalf("DevSignIn: %v", err) }
	if c.Token() != auth.Token || auth.Token == "" { t.Fatalf("token not kept") }
	if cfg, err := c.Config(ctx); err != nil || !cfg.AllowDevAuth || cfg.TimeZone != "UTC" { t.Fatalf("config=%+v err=%v", cfg, err) }
	me, err := c.Me(ctx)
	if err != nil || me.ID != auth.User.ID { t.Fatalf("me=%+v err=%v", me, err) }
	if q, err := c.Waiting(ctx); err != nil || len(q.Users) != 0 { t.Fatalf("waiting=%+v err=%v", q, err) }
	if lb, err := c.GlobalLeaderboard(ctx); err != nil || lb.Scope != "global" { t.Fatalf("board=%+v err=%v", lb, err) }
	if w, err := c.DailyWinner(ctx, "2025-03-01"); err != nil || w.Date != "2025-03-01" || w.Winner != nil { t.Fatalf("winner=%+v err=%v", w, err) }
}

func TestConnMatchmaking(t *testing.T) {
	srv := newArena(t)
	ctx := context.Background()
	wsURL, _ := WSURL(srv.URL)

	join := func(name string) (*Conn, chan Frame) {
		c := New(srv.URL, 2*time.Second)
		if _, err := c.DevSignIn(ctx, name); err != nil { t.Fatalf("sign in %s: %v", name, err) }
		conn := NewConn(wsURL, c.Token, 0)
		frames := make(chan Frame, 64)
		conn.OnFrame(func(f Frame) { frames <- f })
		if err := conn.Connect(ctx); err != nil { t.Fatalf("connect %s: %v", name, err) }
		if conn.State() != StateConnected { t.Fatalf("state %s", conn.State()) }
		t.Cleanup(func() {
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = conn.Close(cctx)
		})
		return conn, frames
	}
	await := func(frames chan Frame, typ string) Frame {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case f := <-frames:
				if f.Type == typ {
					return f
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s", typ)
			}
		}
	}

	alice, af := join("alice")
	if err := alice.Send(ctx, "join-queue", map[string]any{}); err != nil { t.Fatalf("send: %v", err) }
	for {
		var q arenadto.QueueSnapshot
		f := await(af, arenadto.EventQueueSnapshot)
		_ = json.Unmarshal(f.Payload, &q)
		if len(q.Users) == 1 {
			break
		}
	}
	bob, bf := join("bob")
	if err := bob.Send(ctx, "join-queue", map[string]any{}); err != nil { t.Fatalf("send: %v", err) }
	await(af, arenadto.EventMatchFound)
	await(bf, arenadto.EventMatchFound)

	var st arenadto.SessionState
	_ = json.Unmarshal(await(af, arenadto.EventSessionState).Payload, &st)
	if st.ViewerColor != "white" || len(st.LegalMoves) == 0 { t.Fatalf("alice state %+v", st) }
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewConn("ws://127.0.0.1:1/ws", nil, 0)
	if err := c.Send(context.Background(), "join-queue", nil); err != ErrNotConnected { t.Fatalf("err=%v", err) }
}
