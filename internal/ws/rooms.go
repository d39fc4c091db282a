package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
)

const (
	userRoomPrefix         = "user:"
	conversationRoomPrefix = "conversation:"
)

// UserRoom names the room holding all of one user's connections.
func UserRoom(id types.UserID) string { return userRoomPrefix + string(id) }

// ConversationRoom names the room of connections currently viewing a
// conversation. Membership is routing state only; participantship truth lives
// in the store.
func ConversationRoom(id types.ConversationID) string {
	return conversationRoomPrefix + string(id)
}

// Relay mirrors local broadcasts to peer instances. Implementations must not
// deliver a published event back to the origin's local rooms.
type Relay interface {
	Publish(ctx context.Context, room, event string, payload json.RawMessage)
}

// Rooms is the process-local broadcast fabric: named multicast groups of
// connections with best-effort delivery. A dead or backpressured member never
// blocks delivery to the rest.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[*Connection]struct{}

	relay  Relay
	logger zerolog.Logger
}

// NewRooms creates an empty room set.
func NewRooms(logger zerolog.Logger) *Rooms {
	return &Rooms{members: make(map[string]map[*Connection]struct{}), logger: logger}
}

// SetRelay installs the cross-instance mirror. Optional; single-instance
// deployments and tests run without one.
func (r *Rooms) SetRelay(relay Relay) { r.relay = relay }

// Join adds the connection to the room. Joining twice has no effect.
func (r *Rooms) Join(c *Connection, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[room] == nil {
		r.members[room] = make(map[*Connection]struct{})
	}
	r.members[room][c] = struct{}{}
}

// Leave removes the connection from the room. Leaving a room the connection is
// not in has no effect.
func (r *Rooms) Leave(c *Connection, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.members[room]
	if conns == nil {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.members, room)
	}
}

// LeaveAll removes the connection from every room it joined. Called on
// disconnect; conversation rooms are not restored on reconnect, the client
// must re-issue conversation:join.
func (r *Rooms) LeaveAll(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room, conns := range r.members {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.members, room)
		}
	}
}

// InRoom reports current membership.
func (r *Rooms) InRoom(c *Connection, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[room][c]
	return ok
}

// Broadcast delivers the event to every connection currently in the room and
// mirrors it to peer instances through the relay.
func (r *Rooms) Broadcast(ctx context.Context, room, event string, payload any) {
	r.BroadcastExcept(ctx, room, event, payload, nil)
}

// BroadcastExcept is Broadcast with one local connection skipped, for events
// that should not echo to their initiator.
func (r *Rooms) BroadcastExcept(ctx context.Context, room, event string, payload any, skip *Connection) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("broadcast payload not serializable")
		return
	}
	r.deliver(room, event, data, skip)
	if r.relay != nil {
		r.relay.Publish(ctx, room, event, data)
	}
}

// DeliverLocal fans an already-encoded event out to local members only. Used by
// the relay when applying events published by peer instances; the skipped
// initiator is never local to a peer, so no exclusion is needed here.
func (r *Rooms) DeliverLocal(room, event string, payload json.RawMessage) {
	r.deliver(room, event, payload, nil)
}

func (r *Rooms) deliver(room, event string, data json.RawMessage, skip *Connection) {
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("broadcast frame not serializable")
		return
	}

	r.mu.RLock()
	conns := r.members[room]
	recipients := make([]*Connection, 0, len(conns))
	for c := range conns {
		if c == skip {
			continue
		}
		recipients = append(recipients, c)
	}
	r.mu.RUnlock()

	for _, c := range recipients {
		if err := c.enqueue(frame); err != nil {
			// Best effort: a dead or slow member is skipped, the rest still
			// receive the event.
			r.logger.Debug().Err(err).Str("room", room).Str("event", event).
				Str("user", string(c.Identity().ID)).Msg("dropped broadcast for connection")
			continue
		}
	}
	broadcastEvents.WithLabelValues(event).Inc()
}
