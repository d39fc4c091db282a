package protocol

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
	"github.com/example/lynk/internal/ws"
)

func zeroLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

type ackRecord struct {
	id      uint64
	ok      bool
	message string
	payload any
}

type fakeSession struct {
	identity types.Identity
	joined   []string
	left     []string
	acks     []ackRecord
}

func (s *fakeSession) Identity() types.Identity { return s.identity }
func (s *fakeSession) Join(room string)         { s.joined = append(s.joined, room) }
func (s *fakeSession) Leave(room string)        { s.left = append(s.left, room) }
func (s *fakeSession) Send(string, any) error   { return nil }
func (s *fakeSession) Ack(id uint64, ok bool, message string, payload any) {
	s.acks = append(s.acks, ackRecord{id: id, ok: ok, message: message, payload: payload})
}

type emittedEvent struct {
	target  string
	event   string
	payload any
}

type fakeEmitter struct {
	events []emittedEvent
}

func (e *fakeEmitter) ToUser(_ context.Context, id types.UserID, event string, payload any) {
	e.events = append(e.events, emittedEvent{target: ws.UserRoom(id), event: event, payload: payload})
}

func (e *fakeEmitter) ToConversation(_ context.Context, id types.ConversationID, event string, payload any) {
	e.events = append(e.events, emittedEvent{target: ws.ConversationRoom(id), event: event, payload: payload})
}

func (e *fakeEmitter) ToConversationOthers(_ context.Context, id types.ConversationID, _ ws.Session, event string, payload any) {
	e.events = append(e.events, emittedEvent{target: ws.ConversationRoom(id) + "!others", event: event, payload: payload})
}

func (e *fakeEmitter) byEvent(event string) []emittedEvent {
	var out []emittedEvent
	for _, ev := range e.events {
		if ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}

type fakeConversationStore struct {
	participants    []types.UserID
	participantsErr error
	created         []types.Message
	createErr       error
	seen            []types.MessageID
	seenCalls       int
	seenErr         error
}

func (f *fakeConversationStore) Participants(_ context.Context, _ types.ConversationID) ([]types.UserID, error) {
	return f.participants, f.participantsErr
}

func (f *fakeConversationStore) CreateMessage(_ context.Context, id types.ConversationID, sender types.UserID, text string, attachments []string) (types.Message, error) {
	if f.createErr != nil {
		return types.Message{}, f.createErr
	}
	msg := types.Message{
		ID:             "msg-1",
		ConversationID: id,
		Text:           text,
		Attachments:    attachments,
		Sender:         types.Identity{ID: sender},
	}
	f.created = append(f.created, msg)
	return msg, nil
}

func (f *fakeConversationStore) MarkSeen(_ context.Context, _ types.ConversationID, _ types.UserID, ids []types.MessageID) error {
	f.seenCalls++
	f.seen = append(f.seen, ids...)
	return f.seenErr
}

type fakeFriendshipStore struct {
	friendship      types.Friendship
	requestErr      error
	transitionErr   error
	conversation    types.Conversation
	conversationErr error

	lastAction types.FriendshipAction
	lastActor  types.UserID
}

func (f *fakeFriendshipStore) SendRequest(_ context.Context, actor types.UserID, _ string) (types.Friendship, error) {
	f.lastActor = actor
	return f.friendship, f.requestErr
}

func (f *fakeFriendshipStore) Transition(_ context.Context, action types.FriendshipAction, actor types.UserID, _ types.FriendshipID) (types.Friendship, error) {
	f.lastAction = action
	f.lastActor = actor
	return f.friendship, f.transitionErr
}

func (f *fakeFriendshipStore) GetOrCreatePrivateConversation(_ context.Context, _, _ types.UserID) (types.Conversation, error) {
	return f.conversation, f.conversationErr
}
