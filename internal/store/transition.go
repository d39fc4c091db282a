package store

import (
	"github.com/example/lynk/internal/protocol"
	"github.com/example/lynk/internal/types"
)

// transitionOutcome is the computed result of applying one friendship action:
// either the record's next column values or its deletion, plus the status the
// resulting snapshot should report.
type transitionOutcome struct {
	deleteRecord bool
	status       types.FriendshipStatus
	blockedBy    types.UserID
	prevStatus   types.FriendshipStatus
}

// applyTransition enforces the relationship state machine as pure rules so
// they can be exercised without a database. The caller holds the row lock.
func applyTransition(action types.FriendshipAction, f types.Friendship, actor types.UserID) (transitionOutcome, error) {
	switch action {
	case types.ActionCancel:
		if f.Requester != actor {
			return transitionOutcome{}, protocol.AuthorizationError("only the requester can cancel this request")
		}
		if f.Status == types.FriendshipAccepted {
			return transitionOutcome{}, protocol.ConflictError("friend request is already accepted")
		}
		if f.Status != types.FriendshipPending {
			return transitionOutcome{}, protocol.ConflictError("friend request is not pending")
		}
		return transitionOutcome{deleteRecord: true, status: f.Status}, nil

	case types.ActionAccept, types.ActionReject:
		if f.Recipient != actor {
			return transitionOutcome{}, protocol.AuthorizationError("only the recipient can answer this request")
		}
		if err := rejectIfBlocked(f, actor); err != nil {
			return transitionOutcome{}, err
		}
		if f.Status != types.FriendshipPending {
			return transitionOutcome{}, protocol.ConflictError("friend request is not pending")
		}
		if action == types.ActionReject {
			return transitionOutcome{deleteRecord: true, status: f.Status}, nil
		}
		return transitionOutcome{status: types.FriendshipAccepted, prevStatus: types.FriendshipNone}, nil

	case types.ActionRemove:
		if !f.Involves(actor) {
			return transitionOutcome{}, protocol.AuthorizationError("you are not part of this friendship")
		}
		if f.Status == types.FriendshipBlocked && f.BlockedBy != actor {
			return transitionOutcome{}, protocol.AuthorizationError("only the blocker can delete a blocked friendship")
		}
		return transitionOutcome{deleteRecord: true, status: f.Status}, nil

	case types.ActionBlock:
		if !f.Involves(actor) {
			return transitionOutcome{}, protocol.AuthorizationError("you are not part of this friendship")
		}
		if err := rejectIfBlocked(f, actor); err != nil {
			return transitionOutcome{}, err
		}
		return transitionOutcome{status: types.FriendshipBlocked, blockedBy: actor, prevStatus: f.Status}, nil

	case types.ActionUnblock:
		if f.Status != types.FriendshipBlocked {
			return transitionOutcome{}, protocol.ConflictError("friend is not blocked")
		}
		if f.BlockedBy != actor {
			return transitionOutcome{}, protocol.AuthorizationError("only the blocker can unblock")
		}
		if f.PrevStatus == types.FriendshipNone || f.PrevStatus == "" {
			// The relation only ever existed as a block; unblocking erases it.
			return transitionOutcome{deleteRecord: true, status: types.FriendshipNone}, nil
		}
		return transitionOutcome{status: f.PrevStatus, prevStatus: types.FriendshipNone}, nil

	default:
		return transitionOutcome{}, protocol.ValidationError("unknown friendship action")
	}
}

func rejectIfBlocked(f types.Friendship, actor types.UserID) error {
	if f.Status != types.FriendshipBlocked {
		return nil
	}
	if f.BlockedBy == actor {
		return protocol.ConflictError("you blocked this user")
	}
	return protocol.AuthorizationError("you are blocked by this user")
}

// validateNewRequest guards friend:request against the existing relation
// between the pair, if any.
func validateNewRequest(existing *types.Friendship, actor types.UserID) error {
	if existing == nil {
		return nil
	}
	switch existing.Status {
	case types.FriendshipAccepted:
		return protocol.ConflictError("you are already friends")
	case types.FriendshipPending:
		return protocol.ConflictError("friend request already sent")
	case types.FriendshipBlocked:
		if existing.BlockedBy == actor {
			return protocol.ConflictError("you blocked this user; unblock to continue")
		}
		return protocol.AuthorizationError("you are blocked by this user")
	default:
		return protocol.ConflictError("a relation already exists between these users")
	}
}
