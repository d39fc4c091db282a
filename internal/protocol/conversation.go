package protocol

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
	"github.com/example/lynk/internal/ws"
)

// ConversationStore is the data/service layer seam the messaging handlers call
// into. It owns participantship truth and message persistence.
type ConversationStore interface {
	Participants(ctx context.Context, id types.ConversationID) ([]types.UserID, error)
	CreateMessage(ctx context.Context, id types.ConversationID, sender types.UserID, text string, attachments []string) (types.Message, error)
	MarkSeen(ctx context.Context, id types.ConversationID, reader types.UserID, messageIDs []types.MessageID) error
}

// ConversationHandler executes conversation-scoped protocol actions and fans
// the results out to the relevant rooms.
type ConversationHandler struct {
	store   ConversationStore
	emitter Emitter
	logger  zerolog.Logger
}

// NewConversationHandler wires the messaging protocol against a store and an
// emitter.
func NewConversationHandler(store ConversationStore, emitter Emitter, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, emitter: emitter, logger: logger}
}

// Join subscribes the caller's connection to a conversation room after the
// store confirms the caller is a participant.
func (h *ConversationHandler) Join(ctx context.Context, s ws.Session, raw json.RawMessage) error {
	p, err := decode[conversationRef](raw)
	if err != nil {
		return err
	}
	if p.ConversationID == "" {
		return ValidationError("conversationId is required")
	}

	participants, err := h.store.Participants(ctx, p.ConversationID)
	if err != nil {
		return err
	}
	if !containsUser(participants, s.Identity().ID) {
		return AuthorizationError("not a participant in this conversation")
	}

	s.Join(ws.ConversationRoom(p.ConversationID))
	return nil
}

// Leave unsubscribes unconditionally; leaving a room you are not in is
// harmless.
func (h *ConversationHandler) Leave(ctx context.Context, s ws.Session, raw json.RawMessage) {
	p, err := decode[conversationRef](raw)
	if err != nil || p.ConversationID == "" {
		return
	}
	s.Leave(ws.ConversationRoom(p.ConversationID))
}

// SendMessage validates the payload locally, persists through the store, then
// broadcasts to the conversation room and to each participant's personal room
// for conversation-list consumers. Only the sending connection gets the ack
// carrying the persisted message.
func (h *ConversationHandler) SendMessage(ctx context.Context, s ws.Session, raw json.RawMessage) (any, error) {
	p, err := decode[messagePayload](raw)
	if err != nil {
		return nil, err
	}
	if p.ConversationID == "" {
		return nil, ValidationError("conversationId is required")
	}
	p.Text = strings.TrimSpace(p.Text)
	if p.Text == "" && len(p.Attachments) == 0 {
		// Rejected before the store is ever consulted.
		return nil, ValidationError("message text is required")
	}

	msg, err := h.store.CreateMessage(ctx, p.ConversationID, s.Identity().ID, p.Text, p.Attachments)
	if err != nil {
		return nil, err
	}

	h.emitter.ToConversation(ctx, p.ConversationID, EventNewMessage, newMessageEvent{
		ConversationID: p.ConversationID,
		Message:        msg,
	})

	summary := conversationUpdatedEvent{ConversationID: p.ConversationID, LastMessage: msg.Summary()}
	participants, err := h.store.Participants(ctx, p.ConversationID)
	if err != nil {
		// The message is persisted and the room notified; list consumers catch
		// up on their next fetch.
		h.logger.Warn().Err(err).Str("conversation", string(p.ConversationID)).Msg("conversation summary fan-out skipped")
	} else {
		for _, participant := range participants {
			h.emitter.ToUser(ctx, participant, EventConversationUpdated, summary)
		}
	}

	return newMessageEvent{ConversationID: p.ConversationID, Message: msg}, nil
}

// Typing relays a typing indicator to the other members of the conversation
// room. No validation round trip and no ack: stale indicators are harmless.
func (h *ConversationHandler) Typing(ctx context.Context, s ws.Session, raw json.RawMessage) {
	p, err := decode[typingPayload](raw)
	if err != nil || p.ConversationID == "" {
		return
	}
	h.emitter.ToConversationOthers(ctx, p.ConversationID, s, EventMessageTyping, typingEvent{
		ConversationID: p.ConversationID,
		UserID:         s.Identity().ID,
		IsTyping:       p.IsTyping,
	})
}

// MarkSeen records read receipts through the store and notifies the room.
func (h *ConversationHandler) MarkSeen(ctx context.Context, s ws.Session, raw json.RawMessage) error {
	p, err := decode[seenPayload](raw)
	if err != nil {
		return err
	}
	if p.ConversationID == "" {
		return ValidationError("conversationId is required")
	}

	if err := h.store.MarkSeen(ctx, p.ConversationID, s.Identity().ID, p.MessageIDs); err != nil {
		return err
	}

	h.emitter.ToConversation(ctx, p.ConversationID, EventMessageSeen, seenEvent{
		ConversationID: p.ConversationID,
		By:             s.Identity().ID,
		MessageIDs:     p.MessageIDs,
	})
	return nil
}

func containsUser(ids []types.UserID, id types.UserID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
