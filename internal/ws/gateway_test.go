package ws

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
)

type ackingHandler struct{}

func (ackingHandler) HandleFrame(_ context.Context, s Session, f Frame) {
	if f.ID != 0 {
		s.Ack(f.ID, true, "", nil)
	}
}

type hookLog struct {
	mu          sync.Mutex
	connects    []bool
	disconnects []bool
}

func (h *hookLog) hooks() Hooks {
	return Hooks{
		OnConnect: func(_ *Connection, first bool) {
			h.mu.Lock()
			h.connects = append(h.connects, first)
			h.mu.Unlock()
		},
		OnDisconnect: func(_ *Connection, last bool) {
			h.mu.Lock()
			h.disconnects = append(h.disconnects, last)
			h.mu.Unlock()
		},
	}
}

func (h *hookLog) snapshot() (connects, disconnects []bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.connects...), append([]bool(nil), h.disconnects...)
}

func newTestGateway(t *testing.T) (*httptest.Server, *Registry, *Rooms, *hookLog) {
	t.Helper()

	auth := AuthFunc(func(r *http.Request) (types.Identity, error) {
		user := r.URL.Query().Get("user")
		if user == "" {
			return types.Identity{}, errors.New("no credential")
		}
		return types.Identity{ID: types.UserID(user)}, nil
	})

	registry := NewRegistry()
	rooms := NewRooms(zerolog.New(io.Discard))
	log := &hookLog{}

	gw, err := NewGateway(auth, registry, rooms, ackingHandler{}, log.hooks(), zerolog.New(io.Discard), GatewayConfig{})
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return srv, registry, rooms, log
}

func dialGateway(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", user, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestGatewayRejectsUnauthenticatedHandshake(t *testing.T) {
	srv, registry, _, log := newTestGateway(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("handshake without a credential must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	if len(registry.OnlineUserIDs()) != 0 {
		t.Fatal("rejected handshake must not register anything")
	}
	if connects, _ := log.snapshot(); len(connects) != 0 {
		t.Fatalf("rejected handshake must not fire hooks, got %+v", connects)
	}
}

func TestGatewayConnectionLifecycle(t *testing.T) {
	srv, registry, rooms, log := newTestGateway(t)

	tab1 := dialGateway(t, srv, "alice")
	waitFor(t, "first tab registered", func() bool { return registry.IsOnline("alice") })

	connects, _ := log.snapshot()
	if len(connects) != 1 || !connects[0] {
		t.Fatalf("first tab should connect with first=true, got %+v", connects)
	}

	// Registration implies the personal room was joined; a user-room broadcast
	// must reach the client.
	rooms.Broadcast(context.Background(), UserRoom("alice"), "presence:changed", map[string]string{"status": "online"})
	_ = tab1.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pushed Frame
	if err := tab1.ReadJSON(&pushed); err != nil {
		t.Fatalf("read personal-room push: %v", err)
	}
	if pushed.Event != "presence:changed" {
		t.Fatalf("unexpected push: %+v", pushed)
	}

	tab2 := dialGateway(t, srv, "alice")
	waitFor(t, "second tab registered", func() bool {
		connects, _ := log.snapshot()
		return len(connects) == 2
	})
	connects, _ = log.snapshot()
	if connects[1] {
		t.Fatal("second tab must connect with first=false")
	}

	tab2.Close()
	waitFor(t, "second tab unregistered", func() bool {
		_, disconnects := log.snapshot()
		return len(disconnects) == 1
	})
	if _, disconnects := log.snapshot(); disconnects[0] {
		t.Fatal("closing one of two tabs must report last=false")
	}
	if !registry.IsOnline("alice") {
		t.Fatal("user must stay online while a tab remains")
	}

	tab1.Close()
	waitFor(t, "last tab unregistered", func() bool {
		_, disconnects := log.snapshot()
		return len(disconnects) == 2
	})
	if _, disconnects := log.snapshot(); !disconnects[1] {
		t.Fatal("closing the last tab must report last=true")
	}
	waitFor(t, "user offline", func() bool { return !registry.IsOnline("alice") })
}

func TestGatewayAcksRequestFrames(t *testing.T) {
	srv, _, _, _ := newTestGateway(t)

	conn := dialGateway(t, srv, "alice")
	if err := conn.WriteJSON(Frame{ID: 42, Event: "conversation:join"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack Frame
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Event != EventAck || ack.ID != 42 || ack.OK == nil || !*ack.OK {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}
