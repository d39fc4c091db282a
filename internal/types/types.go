package types

import "time"

// UserID is the internal identity of a registered user.
type UserID string

// ConversationID identifies a private or group conversation.
type ConversationID string

// FriendshipID identifies the single relationship record kept per user pair.
type FriendshipID string

// MessageID identifies a persisted message.
type MessageID string

// Presence status values persisted on the user record.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// FriendshipStatus is the relationship state machine:
// pending -> accepted, pending -> deleted (cancel/reject),
// pending|accepted -> blocked -> previous-or-deleted.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
	// FriendshipNone marks a blocked relation that had no prior state, so an
	// unblock deletes the record instead of restoring one.
	FriendshipNone FriendshipStatus = "none"
)

// FriendshipAction names a relationship transition requested by a caller who
// already holds the friendship id. Sending a new request is separate since it
// targets a public user id instead.
type FriendshipAction string

const (
	ActionCancel  FriendshipAction = "cancel"
	ActionAccept  FriendshipAction = "accept"
	ActionReject  FriendshipAction = "reject"
	ActionRemove  FriendshipAction = "remove"
	ActionBlock   FriendshipAction = "block"
	ActionUnblock FriendshipAction = "unblock"
)

// Identity is the resolved user attached to every authenticated connection.
type Identity struct {
	ID       UserID `json:"_id"`
	Name     string `json:"name"`
	PublicID string `json:"userId"`
	Status   string `json:"status"`
}

// Friendship is the wire snapshot of a relationship record.
type Friendship struct {
	ID         FriendshipID     `json:"_id"`
	Requester  UserID           `json:"requester"`
	Recipient  UserID           `json:"recipient"`
	Status     FriendshipStatus `json:"status"`
	BlockedBy  UserID           `json:"blockedBy,omitempty"`
	PrevStatus FriendshipStatus `json:"-"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Other returns the party that is not the given user.
func (f Friendship) Other(u UserID) UserID {
	if f.Requester == u {
		return f.Recipient
	}
	return f.Requester
}

// Involves reports whether the user is one of the two parties.
func (f Friendship) Involves(u UserID) bool {
	return f.Requester == u || f.Recipient == u
}

// Conversation is the wire snapshot of a conversation.
type Conversation struct {
	ID           ConversationID `json:"_id"`
	Participants []UserID       `json:"participants"`
	IsGroup      bool           `json:"isGroup"`
	GroupName    string         `json:"groupName,omitempty"`
	Admin        UserID         `json:"admin,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Message is the wire snapshot of a persisted message, sender pre-joined so a
// single broadcast payload needs no further lookups.
type Message struct {
	ID             MessageID      `json:"_id"`
	ConversationID ConversationID `json:"conversationId"`
	Text           string         `json:"text"`
	Attachments    []string       `json:"attachments,omitempty"`
	Sender         Identity       `json:"sender"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// MessageSummary is the lightweight shape sent to conversation-list consumers.
type MessageSummary struct {
	Text      string    `json:"text"`
	Sender    UserID    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary trims a message down to its conversation-list form.
func (m Message) Summary() MessageSummary {
	return MessageSummary{Text: m.Text, Sender: m.Sender.ID, CreatedAt: m.CreatedAt}
}
