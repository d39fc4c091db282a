package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/lynk/internal/protocol"
	"github.com/example/lynk/internal/types"
)

// pairKey builds the order-independent key keeping one relationship record per
// user pair.
func pairKey(a, b types.UserID) string {
	if a < b {
		return string(a) + "_" + string(b)
	}
	return string(b) + "_" + string(a)
}

// SendRequest creates a pending friendship toward the user with the given
// public handle. Exactly one record exists per pair; a concurrent duplicate
// request loses on the pair_key unique index.
func (s *Store) SendRequest(ctx context.Context, actor types.UserID, recipientPublicID string) (types.Friendship, error) {
	recipient, err := s.FindByPublicID(ctx, recipientPublicID)
	if err != nil {
		return types.Friendship{}, err
	}
	if recipient.ID == actor {
		return types.Friendship{}, protocol.ValidationError("you cannot send a friend request to yourself")
	}

	existing, err := s.friendshipByPair(ctx, actor, recipient.ID)
	if err != nil {
		return types.Friendship{}, err
	}
	if err := validateNewRequest(existing, actor); err != nil {
		return types.Friendship{}, err
	}

	f := types.Friendship{
		ID:         types.FriendshipID(uuid.NewString()),
		Requester:  actor,
		Recipient:  recipient.ID,
		Status:     types.FriendshipPending,
		PrevStatus: types.FriendshipNone,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO friendships (id, requester, recipient, status, prev_status, pair_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, f.ID, f.Requester, f.Recipient, f.Status, f.PrevStatus, pairKey(actor, recipient.ID)).Scan(&f.CreatedAt)
	if isUniqueViolation(err) {
		return types.Friendship{}, protocol.ConflictError("friend request already sent")
	}
	if err != nil {
		return types.Friendship{}, fmt.Errorf("create friendship: %w", err)
	}
	return f, nil
}

// Transition applies one relationship action under a row lock so racing
// actions on the same pair serialize; at most one accept can ever observe the
// pending state.
func (s *Store) Transition(ctx context.Context, action types.FriendshipAction, actor types.UserID, id types.FriendshipID) (types.Friendship, error) {
	var result types.Friendship
	err := s.retry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		f, err := scanFriendship(tx.QueryRow(ctx, `
			SELECT id, requester, recipient, status, COALESCE(blocked_by, ''), prev_status, created_at
			FROM friendships WHERE id = $1
			FOR UPDATE
		`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return protocol.NotFoundError("friendship not found")
		}
		if err != nil {
			return fmt.Errorf("load friendship: %w", err)
		}

		outcome, err := applyTransition(action, f, actor)
		if err != nil {
			return err
		}

		if outcome.deleteRecord {
			if _, err := tx.Exec(ctx, `DELETE FROM friendships WHERE id = $1`, id); err != nil {
				return fmt.Errorf("delete friendship: %w", err)
			}
			f.Status = outcome.status
			f.BlockedBy = ""
		} else {
			if _, err := tx.Exec(ctx, `
				UPDATE friendships SET status = $2, blocked_by = NULLIF($3, ''), prev_status = $4
				WHERE id = $1
			`, id, outcome.status, outcome.blockedBy, outcome.prevStatus); err != nil {
				return fmt.Errorf("update friendship: %w", err)
			}
			f.Status = outcome.status
			f.BlockedBy = outcome.blockedBy
			f.PrevStatus = outcome.prevStatus
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		result = f
		return nil
	})
	if err != nil {
		return types.Friendship{}, err
	}
	return result, nil
}

// AcceptedFriendIDs returns the ids of every user in an accepted friendship
// with the given user. This is the presence broadcast audience.
func (s *Store) AcceptedFriendIDs(ctx context.Context, userID types.UserID) ([]types.UserID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT requester, recipient FROM friendships
		WHERE status = 'accepted' AND (requester = $1 OR recipient = $1)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var friends []types.UserID
	for rows.Next() {
		var requester, recipient types.UserID
		if err := rows.Scan(&requester, &recipient); err != nil {
			return nil, err
		}
		if requester == userID {
			friends = append(friends, recipient)
		} else {
			friends = append(friends, requester)
		}
	}
	return friends, rows.Err()
}

func (s *Store) friendshipByPair(ctx context.Context, a, b types.UserID) (*types.Friendship, error) {
	f, err := scanFriendship(s.pool.QueryRow(ctx, `
		SELECT id, requester, recipient, status, COALESCE(blocked_by, ''), prev_status, created_at
		FROM friendships WHERE pair_key = $1
	`, pairKey(a, b)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load friendship by pair: %w", err)
	}
	return &f, nil
}

func scanFriendship(row pgx.Row) (types.Friendship, error) {
	var f types.Friendship
	err := row.Scan(&f.ID, &f.Requester, &f.Recipient, &f.Status, &f.BlockedBy, &f.PrevStatus, &f.CreatedAt)
	return f, err
}
