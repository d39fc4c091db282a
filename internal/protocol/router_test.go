package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/example/lynk/internal/types"
	"github.com/example/lynk/internal/ws"
)

func newTestRouter(convStore *fakeConversationStore, friendStore *fakeFriendshipStore, emitter *fakeEmitter) *Router {
	return NewRouter(
		NewConversationHandler(convStore, emitter, zeroLogger()),
		NewFriendshipHandler(friendStore, emitter, zeroLogger()),
		zeroLogger(),
	)
}

func TestRouterAcksUnknownEvent(t *testing.T) {
	r := newTestRouter(&fakeConversationStore{}, &fakeFriendshipStore{}, &fakeEmitter{})
	s := &fakeSession{identity: types.Identity{ID: "alice"}}

	r.HandleFrame(context.Background(), s, ws.Frame{ID: 7, Event: "no:such:event"})

	if len(s.acks) != 1 {
		t.Fatalf("expected 1 ack, got %+v", s.acks)
	}
	ack := s.acks[0]
	if ack.id != 7 || ack.ok || ack.message != "unknown event" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestRouterSkipsAckWhenNoIDRequested(t *testing.T) {
	r := newTestRouter(&fakeConversationStore{}, &fakeFriendshipStore{}, &fakeEmitter{})
	s := &fakeSession{identity: types.Identity{ID: "alice"}}

	r.HandleFrame(context.Background(), s, ws.Frame{Event: "no:such:event"})

	if len(s.acks) != 0 {
		t.Fatalf("expected no ack without an id, got %+v", s.acks)
	}
}

func TestRouterTypingIsFireAndForget(t *testing.T) {
	emitter := &fakeEmitter{}
	r := newTestRouter(&fakeConversationStore{}, &fakeFriendshipStore{}, emitter)
	s := &fakeSession{identity: types.Identity{ID: "alice"}}

	r.HandleFrame(context.Background(), s, ws.Frame{
		ID:    3,
		Event: EventMessageTyping,
		Data:  rawJSON(t, map[string]any{"conversationId": "conv-1", "isTyping": true}),
	})

	if len(s.acks) != 0 {
		t.Fatalf("typing must not be acked even with an id, got %+v", s.acks)
	}
	if len(emitter.byEvent(EventMessageTyping)) != 1 {
		t.Fatalf("typing not relayed: %+v", emitter.events)
	}
}

func TestRouterLeaveAlwaysAcksOK(t *testing.T) {
	r := newTestRouter(&fakeConversationStore{}, &fakeFriendshipStore{}, &fakeEmitter{})
	s := &fakeSession{identity: types.Identity{ID: "alice"}}

	// Even a malformed leave succeeds: the end state, not in the room, holds.
	r.HandleFrame(context.Background(), s, ws.Frame{ID: 5, Event: EventConversationLeave})

	if len(s.acks) != 1 || !s.acks[0].ok {
		t.Fatalf("leave should ack ok, got %+v", s.acks)
	}
}

func TestRouterAcksSuccessWithData(t *testing.T) {
	convStore := &fakeConversationStore{participants: []types.UserID{"alice", "bob"}}
	r := newTestRouter(convStore, &fakeFriendshipStore{}, &fakeEmitter{})
	s := &fakeSession{identity: types.Identity{ID: "alice"}}

	r.HandleFrame(context.Background(), s, ws.Frame{
		ID:    11,
		Event: EventConversationMessage,
		Data:  rawJSON(t, map[string]string{"conversationId": "conv-1", "text": "hello"}),
	})

	if len(s.acks) != 1 {
		t.Fatalf("expected 1 ack, got %+v", s.acks)
	}
	ack := s.acks[0]
	if ack.id != 11 || !ack.ok {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if _, ok := ack.payload.(newMessageEvent); !ok {
		t.Fatalf("ack should carry the persisted message, got %T", ack.payload)
	}
}

func TestRouterMasksUnclassifiedErrors(t *testing.T) {
	convStore := &fakeConversationStore{participantsErr: errors.New("pq: connection refused")}
	r := newTestRouter(convStore, &fakeFriendshipStore{}, &fakeEmitter{})
	s := &fakeSession{identity: types.Identity{ID: "alice"}}

	r.HandleFrame(context.Background(), s, ws.Frame{
		ID:    9,
		Event: EventConversationJoin,
		Data:  rawJSON(t, map[string]string{"conversationId": "conv-1"}),
	})

	if len(s.acks) != 1 {
		t.Fatalf("expected 1 ack, got %+v", s.acks)
	}
	ack := s.acks[0]
	if ack.ok || ack.message != "internal error" {
		t.Fatalf("internal detail must not leak to the caller: %+v", ack)
	}
}

func TestRouterDispatchesFriendshipActions(t *testing.T) {
	for _, tc := range []struct {
		event  string
		action types.FriendshipAction
	}{
		{EventFriendCancel, types.ActionCancel},
		{EventFriendAccept, types.ActionAccept},
		{EventFriendReject, types.ActionReject},
		{EventFriendRemove, types.ActionRemove},
		{EventFriendBlock, types.ActionBlock},
		{EventFriendUnblock, types.ActionUnblock},
	} {
		friendStore := &fakeFriendshipStore{friendship: pendingFriendship()}
		r := newTestRouter(&fakeConversationStore{}, friendStore, &fakeEmitter{})
		s := &fakeSession{identity: types.Identity{ID: "alice"}}

		r.HandleFrame(context.Background(), s, ws.Frame{
			ID:    1,
			Event: tc.event,
			Data:  rawJSON(t, map[string]string{"friendshipId": "fr-1"}),
		})

		if friendStore.lastAction != tc.action {
			t.Fatalf("event %s dispatched as %s", tc.event, friendStore.lastAction)
		}
		if len(s.acks) != 1 || !s.acks[0].ok {
			t.Fatalf("event %s: unexpected acks %+v", tc.event, s.acks)
		}
	}
}
