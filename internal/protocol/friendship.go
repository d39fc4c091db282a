package protocol

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
	"github.com/example/lynk/internal/ws"
)

// FriendshipStore is the data/service layer seam for relationship-state
// transitions. It enforces the friendship state machine; handlers only shape
// payloads and choose audiences.
type FriendshipStore interface {
	SendRequest(ctx context.Context, actor types.UserID, recipientPublicID string) (types.Friendship, error)
	Transition(ctx context.Context, action types.FriendshipAction, actor types.UserID, id types.FriendshipID) (types.Friendship, error)
	GetOrCreatePrivateConversation(ctx context.Context, a, b types.UserID) (types.Conversation, error)
}

// FriendshipHandler executes relationship actions and notifies exactly the
// affected identities.
type FriendshipHandler struct {
	store   FriendshipStore
	emitter Emitter
	logger  zerolog.Logger
}

// NewFriendshipHandler wires the friendship protocol against a store and an
// emitter.
func NewFriendshipHandler(store FriendshipStore, emitter Emitter, logger zerolog.Logger) *FriendshipHandler {
	return &FriendshipHandler{store: store, emitter: emitter, logger: logger}
}

// Request creates a pending friendship and notifies the recipient only.
func (h *FriendshipHandler) Request(ctx context.Context, s ws.Session, raw json.RawMessage) (any, error) {
	p, err := decode[friendRequestPayload](raw)
	if err != nil {
		return nil, err
	}
	if p.RecipientUserID == "" {
		return nil, ValidationError("recipientUserId is required")
	}

	friendship, err := h.store.SendRequest(ctx, s.Identity().ID, p.RecipientUserID)
	if err != nil {
		return nil, err
	}

	requester := s.Identity()
	h.emitter.ToUser(ctx, friendship.Recipient, EventFriendIncoming, friendshipEvent{
		Friendship: friendship,
		Requester:  &requester,
	})

	return friendshipEvent{Friendship: friendship}, nil
}

// Transition runs one relationship-state action and notifies its audience:
// cancel/accept/reject/remove go to both parties, block only to the blocked
// party, unblock only to the unblocked party.
func (h *FriendshipHandler) Transition(ctx context.Context, s ws.Session, action types.FriendshipAction, raw json.RawMessage) (any, error) {
	p, err := decode[friendshipRef](raw)
	if err != nil {
		return nil, err
	}
	if p.FriendshipID == "" {
		return nil, ValidationError("friendshipId is required")
	}

	actor := s.Identity().ID
	friendship, err := h.store.Transition(ctx, action, actor, p.FriendshipID)
	if err != nil {
		return nil, err
	}

	event := friendshipEvent{Friendship: friendship}

	if action == types.ActionAccept {
		// Accepting opens (or resumes) the private conversation so clients can
		// navigate into the chat without a second round trip. Get-or-create is
		// keyed by the unordered pair, so racing accepts still share one id.
		conversation, err := h.store.GetOrCreatePrivateConversation(ctx, friendship.Requester, friendship.Recipient)
		if err != nil {
			h.logger.Error().Err(err).Str("friendship", string(friendship.ID)).Msg("private conversation creation failed")
		} else {
			event.Conversation = &conversation
		}
	}

	eventName := transitionEvent(action)
	for _, target := range h.audience(action, friendship, actor) {
		h.emitter.ToUser(ctx, target, eventName, event)
	}

	return event, nil
}

func (h *FriendshipHandler) audience(action types.FriendshipAction, f types.Friendship, actor types.UserID) []types.UserID {
	switch action {
	case types.ActionBlock, types.ActionUnblock:
		return []types.UserID{f.Other(actor)}
	default:
		return []types.UserID{f.Requester, f.Recipient}
	}
}

func transitionEvent(action types.FriendshipAction) string {
	switch action {
	case types.ActionCancel:
		return EventFriendCancelled
	case types.ActionAccept:
		return EventFriendAccepted
	case types.ActionReject:
		return EventFriendRejected
	case types.ActionRemove:
		return EventFriendRemoved
	case types.ActionBlock:
		return EventFriendBlocked
	default:
		return EventFriendUnblocked
	}
}
