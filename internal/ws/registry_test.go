package ws

import (
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
)

func testConn(id types.UserID) *Connection {
	return newConnection(nil, types.Identity{ID: id}, nil, zerolog.New(io.Discard), connectionOptions{sendBufferSize: 16}, nil)
}

func TestRegistryFirstAndLastTransitions(t *testing.T) {
	reg := NewRegistry()
	user := types.UserID("alice")

	tab1 := testConn(user)
	tab2 := testConn(user)
	tab3 := testConn(user)

	if first, total := reg.Register(user, tab1); !first || total != 1 {
		t.Fatalf("first tab: got first=%v total=%d", first, total)
	}
	if first, total := reg.Register(user, tab2); first || total != 2 {
		t.Fatalf("second tab: got first=%v total=%d", first, total)
	}
	if first, total := reg.Register(user, tab3); first || total != 3 {
		t.Fatalf("third tab: got first=%v total=%d", first, total)
	}

	if last, total := reg.Unregister(user, tab2); last || total != 2 {
		t.Fatalf("close second tab: got last=%v total=%d", last, total)
	}
	if last, total := reg.Unregister(user, tab1); last || total != 1 {
		t.Fatalf("close first tab: got last=%v total=%d", last, total)
	}
	if !reg.IsOnline(user) {
		t.Fatal("user should still be online with one tab open")
	}
	if last, total := reg.Unregister(user, tab3); !last || total != 0 {
		t.Fatalf("close last tab: got last=%v total=%d", last, total)
	}
	if reg.IsOnline(user) {
		t.Fatal("user should be offline after the last tab closed")
	}
}

func TestRegistryReconnectIsFirstAgain(t *testing.T) {
	reg := NewRegistry()
	user := types.UserID("bob")

	conn := testConn(user)
	reg.Register(user, conn)
	reg.Unregister(user, conn)

	// The entry is removed the instant the set empties, so a reconnect is a
	// fresh first connection.
	if first, _ := reg.Register(user, testConn(user)); !first {
		t.Fatal("reconnect after going offline should be a first connection")
	}
}

func TestRegistryUnknownHandlesAreNoOps(t *testing.T) {
	reg := NewRegistry()
	user := types.UserID("carol")

	if last, total := reg.Unregister(user, testConn(user)); last || total != 0 {
		t.Fatalf("unregister for unknown user: got last=%v total=%d", last, total)
	}

	reg.Register(user, testConn(user))
	if last, total := reg.Unregister(user, testConn(user)); last || total != 1 {
		t.Fatalf("unregister of unknown handle: got last=%v total=%d", last, total)
	}
	if !reg.IsOnline(user) {
		t.Fatal("unknown handle must not affect online status")
	}
}

func TestRegistryOnlineUserIDs(t *testing.T) {
	reg := NewRegistry()

	reg.Register("alice", testConn("alice"))
	reg.Register("bob", testConn("bob"))

	ids := reg.OnlineUserIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(ids))
	}

	if got := reg.ConnectionsFor("nobody"); len(got) != 0 {
		t.Fatalf("expected no connections for offline user, got %d", len(got))
	}
}

func TestRegistryConcurrentChurnSingleFirstAndLast(t *testing.T) {
	reg := NewRegistry()
	user := types.UserID("dave")

	const tabs = 64
	conns := make([]*Connection, tabs)
	for i := range conns {
		conns[i] = testConn(user)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firsts, lasts int

	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			first, _ := reg.Register(user, c)
			if first {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			last, _ := reg.Unregister(user, c)
			if last {
				mu.Lock()
				lasts++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	if firsts != 1 {
		t.Fatalf("expected exactly one first transition, got %d", firsts)
	}
	if lasts != 1 {
		t.Fatalf("expected exactly one last transition, got %d", lasts)
	}
	if reg.IsOnline(user) {
		t.Fatal("user should be offline after all tabs closed")
	}
}
