package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
	"github.com/example/lynk/internal/ws"
)

// EventPresenceChanged is pushed to a user's accepted friends on each
// online-run start and end.
const EventPresenceChanged = "presence:changed"

// Store is the data-layer seam the coordinator needs: a best-effort status
// writer and the friends-only audience lookup.
type Store interface {
	SetUserStatus(ctx context.Context, id types.UserID, status string) error
	AcceptedFriendIDs(ctx context.Context, id types.UserID) ([]types.UserID, error)
}

// Notifier delivers an event to one user's personal room.
type Notifier interface {
	ToUser(ctx context.Context, id types.UserID, event string, payload any)
}

type changedEvent struct {
	UserID types.UserID `json:"userId"`
	Status string       `json:"status"`
}

// Coordinator turns the registry's first-connect/last-disconnect flags into
// exactly one presence broadcast per transition. The in-memory registry stays
// authoritative for live routing; the persisted status is best effort for cold
// reads and never rolls a transition back.
type Coordinator struct {
	store    Store
	notifier Notifier
	logger   zerolog.Logger

	opTimeout time.Duration

	mu    sync.Mutex
	users map[types.UserID]*sync.Mutex
}

// NewCoordinator builds a presence coordinator.
func NewCoordinator(store Store, notifier Notifier, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		notifier:  notifier,
		logger:    logger,
		opTimeout: 10 * time.Second,
		users:     make(map[types.UserID]*sync.Mutex),
	}
}

// Hooks adapts the coordinator to the gateway's lifecycle callbacks,
// preserving any callbacks already present for composition.
func (c *Coordinator) Hooks(base ws.Hooks) ws.Hooks {
	baseConnect := base.OnConnect
	base.OnConnect = func(conn *ws.Connection, first bool) {
		if baseConnect != nil {
			baseConnect(conn, first)
		}
		if first {
			c.Transition(conn.Identity().ID, types.StatusOnline)
		}
	}

	baseDisconnect := base.OnDisconnect
	base.OnDisconnect = func(conn *ws.Connection, last bool) {
		if baseDisconnect != nil {
			baseDisconnect(conn, last)
		}
		if last {
			c.Transition(conn.Identity().ID, types.StatusOffline)
		}
	}

	return base
}

// Transition broadcasts one presence edge to the user's accepted friends and
// asynchronously persists the new status. Intermediate connects and
// disconnects (second tab, third tab) never reach this method.
//
// Transitions for the same user are serialized so no friend ever sees one
// user's events interleaved. When edges race (the last tab closing while a new
// one connects), whichever broadcast runs second wins; clients treat
// presence:changed as last-writer-wins.
func (c *Coordinator) Transition(userID types.UserID, status string) {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	go c.persist(userID, status)

	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	// Friends-only audience: broadcasting globally would leak presence to
	// strangers.
	friends, err := c.store.AcceptedFriendIDs(ctx, userID)
	if err != nil {
		c.logger.Warn().Err(err).Str("user", string(userID)).Msg("presence audience lookup failed; broadcast skipped")
		return
	}

	payload := changedEvent{UserID: userID, Status: status}
	for _, friend := range friends {
		c.notifier.ToUser(ctx, friend, EventPresenceChanged, payload)
	}
}

func (c *Coordinator) userLock(userID types.UserID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock := c.users[userID]
	if lock == nil {
		lock = &sync.Mutex{}
		c.users[userID] = lock
	}
	return lock
}

func (c *Coordinator) persist(userID types.UserID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	if err := c.store.SetUserStatus(ctx, userID, status); err != nil {
		// Logged only: live routing relies on the registry, not this column.
		c.logger.Warn().Err(err).Str("user", string(userID)).Str("status", status).Msg("presence persistence failed")
	}
}
