package protocol

import (
	"encoding/json"

	"github.com/example/lynk/internal/types"
)

// Inbound payloads form a closed set of tagged variants, one per event name,
// decoded and validated before any handler runs.

type conversationRef struct {
	ConversationID types.ConversationID `json:"conversationId"`
}

type messagePayload struct {
	ConversationID types.ConversationID `json:"conversationId"`
	Text           string               `json:"text"`
	Attachments    []string             `json:"attachments,omitempty"`
}

type typingPayload struct {
	ConversationID types.ConversationID `json:"conversationId"`
	IsTyping       bool                 `json:"isTyping"`
}

type seenPayload struct {
	ConversationID types.ConversationID `json:"conversationId"`
	MessageIDs     []types.MessageID    `json:"messageIds,omitempty"`
}

type friendRequestPayload struct {
	RecipientUserID string `json:"recipientUserId"`
}

type friendshipRef struct {
	FriendshipID types.FriendshipID `json:"friendshipId"`
}

// Outbound payloads.

type newMessageEvent struct {
	ConversationID types.ConversationID `json:"conversationId"`
	Message        types.Message        `json:"message"`
}

type conversationUpdatedEvent struct {
	ConversationID types.ConversationID `json:"conversationId"`
	LastMessage    types.MessageSummary `json:"lastMessage"`
}

type typingEvent struct {
	ConversationID types.ConversationID `json:"conversationId"`
	UserID         types.UserID         `json:"userId"`
	IsTyping       bool                 `json:"isTyping"`
}

type seenEvent struct {
	ConversationID types.ConversationID `json:"conversationId"`
	By             types.UserID         `json:"by"`
	MessageIDs     []types.MessageID    `json:"messageIds,omitempty"`
}

type friendshipEvent struct {
	Friendship types.Friendship `json:"friendship"`
	// Requester rides along on friend:incoming so the recipient can render the
	// request without a lookup.
	Requester *types.Identity `json:"requester,omitempty"`
	// Conversation rides along on friend:accepted so both clients can navigate
	// straight into the chat.
	Conversation *types.Conversation `json:"conversation,omitempty"`
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, ValidationError("missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, ValidationError("malformed payload")
	}
	return v, nil
}
