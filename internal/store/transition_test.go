package store

import (
	"testing"

	"github.com/example/lynk/internal/protocol"
	"github.com/example/lynk/internal/types"
)

func friendship(status types.FriendshipStatus) types.Friendship {
	return types.Friendship{
		ID:        "fr-1",
		Requester: "alice",
		Recipient: "bob",
		Status:    status,
	}
}

func TestCancelRules(t *testing.T) {
	out, err := applyTransition(types.ActionCancel, friendship(types.FriendshipPending), "alice")
	if err != nil {
		t.Fatalf("requester cancel failed: %v", err)
	}
	if !out.deleteRecord {
		t.Fatal("cancel must delete the record")
	}

	if _, err := applyTransition(types.ActionCancel, friendship(types.FriendshipPending), "bob"); protocol.KindOf(err) != protocol.KindAuthorization {
		t.Fatalf("recipient cancel: expected authorization error, got %v", err)
	}
	if _, err := applyTransition(types.ActionCancel, friendship(types.FriendshipAccepted), "alice"); protocol.KindOf(err) != protocol.KindConflict {
		t.Fatalf("cancel accepted: expected conflict, got %v", err)
	}
}

func TestAcceptAndRejectRules(t *testing.T) {
	out, err := applyTransition(types.ActionAccept, friendship(types.FriendshipPending), "bob")
	if err != nil {
		t.Fatalf("recipient accept failed: %v", err)
	}
	if out.deleteRecord || out.status != types.FriendshipAccepted {
		t.Fatalf("unexpected accept outcome: %+v", out)
	}

	out, err = applyTransition(types.ActionReject, friendship(types.FriendshipPending), "bob")
	if err != nil {
		t.Fatalf("recipient reject failed: %v", err)
	}
	if !out.deleteRecord {
		t.Fatal("reject must delete the record")
	}

	for _, action := range []types.FriendshipAction{types.ActionAccept, types.ActionReject} {
		if _, err := applyTransition(action, friendship(types.FriendshipPending), "alice"); protocol.KindOf(err) != protocol.KindAuthorization {
			t.Fatalf("requester %s: expected authorization error, got %v", action, err)
		}
		if _, err := applyTransition(action, friendship(types.FriendshipAccepted), "bob"); protocol.KindOf(err) != protocol.KindConflict {
			t.Fatalf("%s on accepted: expected conflict, got %v", action, err)
		}
	}
}

func TestRemoveRules(t *testing.T) {
	out, err := applyTransition(types.ActionRemove, friendship(types.FriendshipAccepted), "bob")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if !out.deleteRecord {
		t.Fatal("remove must delete the record")
	}

	if _, err := applyTransition(types.ActionRemove, friendship(types.FriendshipAccepted), "eve"); protocol.KindOf(err) != protocol.KindAuthorization {
		t.Fatalf("outsider remove: expected authorization error, got %v", err)
	}

	blocked := friendship(types.FriendshipBlocked)
	blocked.BlockedBy = "alice"
	if _, err := applyTransition(types.ActionRemove, blocked, "bob"); protocol.KindOf(err) != protocol.KindAuthorization {
		t.Fatalf("blocked party remove: expected authorization error, got %v", err)
	}
	if out, err := applyTransition(types.ActionRemove, blocked, "alice"); err != nil || !out.deleteRecord {
		t.Fatalf("blocker remove: got out=%+v err=%v", out, err)
	}
}

func TestBlockRemembersPreviousStatus(t *testing.T) {
	out, err := applyTransition(types.ActionBlock, friendship(types.FriendshipAccepted), "alice")
	if err != nil {
		t.Fatalf("block failed: %v", err)
	}
	if out.status != types.FriendshipBlocked || out.blockedBy != "alice" || out.prevStatus != types.FriendshipAccepted {
		t.Fatalf("unexpected block outcome: %+v", out)
	}

	blocked := friendship(types.FriendshipBlocked)
	blocked.BlockedBy = "alice"
	if _, err := applyTransition(types.ActionBlock, blocked, "alice"); protocol.KindOf(err) != protocol.KindConflict {
		t.Fatalf("double block: expected conflict, got %v", err)
	}
	if _, err := applyTransition(types.ActionBlock, blocked, "bob"); protocol.KindOf(err) != protocol.KindAuthorization {
		t.Fatalf("counter-block: expected authorization error, got %v", err)
	}
}

func TestUnblockRestoresOrDeletes(t *testing.T) {
	blocked := friendship(types.FriendshipBlocked)
	blocked.BlockedBy = "alice"
	blocked.PrevStatus = types.FriendshipAccepted

	out, err := applyTransition(types.ActionUnblock, blocked, "alice")
	if err != nil {
		t.Fatalf("unblock failed: %v", err)
	}
	if out.deleteRecord || out.status != types.FriendshipAccepted {
		t.Fatalf("unblock should restore the previous status: %+v", out)
	}

	// A relation that only ever existed as a block is erased on unblock.
	blocked.PrevStatus = types.FriendshipNone
	out, err = applyTransition(types.ActionUnblock, blocked, "alice")
	if err != nil {
		t.Fatalf("unblock of bare block failed: %v", err)
	}
	if !out.deleteRecord {
		t.Fatalf("bare block should delete on unblock: %+v", out)
	}

	if _, err := applyTransition(types.ActionUnblock, blocked, "bob"); protocol.KindOf(err) != protocol.KindAuthorization {
		t.Fatalf("non-blocker unblock: expected authorization error, got %v", err)
	}
	if _, err := applyTransition(types.ActionUnblock, friendship(types.FriendshipAccepted), "alice"); protocol.KindOf(err) != protocol.KindConflict {
		t.Fatalf("unblock of unblocked: expected conflict, got %v", err)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	if _, err := applyTransition("poke", friendship(types.FriendshipPending), "alice"); protocol.KindOf(err) != protocol.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateNewRequest(t *testing.T) {
	if err := validateNewRequest(nil, "alice"); err != nil {
		t.Fatalf("no existing relation should allow a request: %v", err)
	}

	accepted := friendship(types.FriendshipAccepted)
	if err := validateNewRequest(&accepted, "alice"); protocol.KindOf(err) != protocol.KindConflict {
		t.Fatalf("already friends: expected conflict, got %v", err)
	}

	pending := friendship(types.FriendshipPending)
	if err := validateNewRequest(&pending, "alice"); protocol.KindOf(err) != protocol.KindConflict {
		t.Fatalf("already pending: expected conflict, got %v", err)
	}

	blocked := friendship(types.FriendshipBlocked)
	blocked.BlockedBy = "alice"
	if err := validateNewRequest(&blocked, "alice"); protocol.KindOf(err) != protocol.KindConflict {
		t.Fatalf("blocker request: expected conflict, got %v", err)
	}
	if err := validateNewRequest(&blocked, "bob"); protocol.KindOf(err) != protocol.KindAuthorization {
		t.Fatalf("blocked request: expected authorization error, got %v", err)
	}
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	if pairKey("alice", "bob") != pairKey("bob", "alice") {
		t.Fatal("pair key must not depend on argument order")
	}
	if pairKey("alice", "bob") != "alice_bob" {
		t.Fatalf("unexpected pair key: %q", pairKey("alice", "bob"))
	}
}
