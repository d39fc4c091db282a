package protocol

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
	"github.com/example/lynk/internal/ws"
)

// Event names accepted from clients.
const (
	EventConversationJoin    = "conversation:join"
	EventConversationLeave   = "conversation:leave"
	EventConversationMessage = "conversation:message"
	EventMessageTyping       = "message:typing"
	EventMessageSeen         = "message:seen"
	EventFriendRequest       = "friend:request"
	EventFriendCancel        = "friend:cancel"
	EventFriendAccept        = "friend:accept"
	EventFriendReject        = "friend:reject"
	EventFriendRemove        = "friend:remove"
	EventFriendBlock         = "friend:block"
	EventFriendUnblock       = "friend:unblock"
)

// Event names pushed to clients.
const (
	EventNewMessage          = "conversation:newMessage"
	EventConversationUpdated = "conversation:updated"
	EventFriendIncoming      = "friend:incoming"
	EventFriendCancelled     = "friend:cancelled"
	EventFriendAccepted      = "friend:accepted"
	EventFriendRejected      = "friend:rejected"
	EventFriendRemoved       = "friend:removed"
	EventFriendBlocked       = "friend:blocked"
	EventFriendUnblocked     = "friend:unblocked"
)

// Emitter fans events out to audiences. The ws.Rooms-backed implementation is
// RoomEmitter; tests substitute recorders.
type Emitter interface {
	ToUser(ctx context.Context, id types.UserID, event string, payload any)
	ToConversation(ctx context.Context, id types.ConversationID, event string, payload any)
	// ToConversationOthers excludes the initiating connection; used for typing
	// indicators where echoing to the sender is just noise.
	ToConversationOthers(ctx context.Context, id types.ConversationID, sender ws.Session, event string, payload any)
}

// RoomEmitter adapts ws.Rooms to the Emitter interface.
type RoomEmitter struct {
	Rooms *ws.Rooms
}

func (e RoomEmitter) ToUser(ctx context.Context, id types.UserID, event string, payload any) {
	e.Rooms.Broadcast(ctx, ws.UserRoom(id), event, payload)
}

func (e RoomEmitter) ToConversation(ctx context.Context, id types.ConversationID, event string, payload any) {
	e.Rooms.Broadcast(ctx, ws.ConversationRoom(id), event, payload)
}

func (e RoomEmitter) ToConversationOthers(ctx context.Context, id types.ConversationID, sender ws.Session, event string, payload any) {
	conn, _ := sender.(*ws.Connection)
	e.Rooms.BroadcastExcept(ctx, ws.ConversationRoom(id), event, payload, conn)
}

// Router decodes inbound frames, runs the matching handler, and answers the
// caller's ack. Handler failures become {ok:false, message} acks; they never
// tear down the connection.
type Router struct {
	conversations *ConversationHandler
	friendships   *FriendshipHandler
	logger        zerolog.Logger
}

// NewRouter wires the protocol handlers behind one frame dispatcher.
func NewRouter(conversations *ConversationHandler, friendships *FriendshipHandler, logger zerolog.Logger) *Router {
	return &Router{conversations: conversations, friendships: friendships, logger: logger}
}

// HandleFrame implements ws.FrameHandler.
func (r *Router) HandleFrame(ctx context.Context, s ws.Session, f ws.Frame) {
	switch f.Event {
	case EventMessageTyping:
		// Fire and forget: no ack.
		r.conversations.Typing(ctx, s, f.Data)
		return
	case EventConversationLeave:
		r.conversations.Leave(ctx, s, f.Data)
		r.ack(s, f, nil, nil)
		return
	}

	data, err := r.dispatch(ctx, s, f)
	r.ack(s, f, data, err)
}

func (r *Router) dispatch(ctx context.Context, s ws.Session, f ws.Frame) (any, error) {
	switch f.Event {
	case EventConversationJoin:
		return nil, r.conversations.Join(ctx, s, f.Data)
	case EventConversationMessage:
		return r.conversations.SendMessage(ctx, s, f.Data)
	case EventMessageSeen:
		return nil, r.conversations.MarkSeen(ctx, s, f.Data)
	case EventFriendRequest:
		return r.friendships.Request(ctx, s, f.Data)
	case EventFriendCancel:
		return r.friendships.Transition(ctx, s, types.ActionCancel, f.Data)
	case EventFriendAccept:
		return r.friendships.Transition(ctx, s, types.ActionAccept, f.Data)
	case EventFriendReject:
		return r.friendships.Transition(ctx, s, types.ActionReject, f.Data)
	case EventFriendRemove:
		return r.friendships.Transition(ctx, s, types.ActionRemove, f.Data)
	case EventFriendBlock:
		return r.friendships.Transition(ctx, s, types.ActionBlock, f.Data)
	case EventFriendUnblock:
		return r.friendships.Transition(ctx, s, types.ActionUnblock, f.Data)
	default:
		return nil, ValidationError("unknown event")
	}
}

func (r *Router) ack(s ws.Session, f ws.Frame, data any, err error) {
	if f.ID == 0 {
		// No ack requested.
		if err != nil {
			r.logger.Debug().Str("event", f.Event).Str("error", UserMessage(err)).Msg("unacked request failed")
		}
		return
	}
	if err != nil {
		if KindOf(err) == "" {
			r.logger.Error().Err(err).Str("event", f.Event).Msg("handler failed")
		}
		s.Ack(f.ID, false, UserMessage(err), nil)
		return
	}
	s.Ack(f.ID, true, "", data)
}
