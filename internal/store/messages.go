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

// CreateMessage re-validates participantship, persists the message, and bumps
// the conversation's last-message pointer, all inside one transaction so the
// broadcast order downstream matches persistence order for a conversation.
func (s *Store) CreateMessage(ctx context.Context, conversationID types.ConversationID, sender types.UserID, text string, attachments []string) (types.Message, error) {
	if attachments == nil {
		attachments = []string{}
	}

	var msg types.Message
	err := s.retry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := requireParticipant(ctx, tx, conversationID, sender); err != nil {
			return err
		}

		msg = types.Message{
			ID:             types.MessageID(uuid.NewString()),
			ConversationID: conversationID,
			Text:           text,
			Attachments:    attachments,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO messages (id, conversation_id, sender, text, attachments, read_by)
			VALUES ($1, $2, $3, $4, $5, ARRAY[$3])
			RETURNING created_at
		`, msg.ID, conversationID, sender, text, attachments).Scan(&msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE conversations SET last_message = $2, updated_at = now() WHERE id = $1
		`, conversationID, msg.ID); err != nil {
			return fmt.Errorf("update last message: %w", err)
		}

		err = tx.QueryRow(ctx, `
			SELECT id, name, public_id, status FROM users WHERE id = $1
		`, sender).Scan(&msg.Sender.ID, &msg.Sender.Name, &msg.Sender.PublicID, &msg.Sender.Status)
		if err != nil {
			return fmt.Errorf("load sender: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return types.Message{}, err
	}
	return msg, nil
}

// MarkSeen adds the reader to the read set of the referenced messages, or of
// every message in the conversation when no ids are given.
func (s *Store) MarkSeen(ctx context.Context, conversationID types.ConversationID, reader types.UserID, messageIDs []types.MessageID) error {
	return s.retry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := requireParticipant(ctx, tx, conversationID, reader); err != nil {
			return err
		}

		if len(messageIDs) > 0 {
			ids := make([]string, len(messageIDs))
			for i, id := range messageIDs {
				ids[i] = string(id)
			}
			_, err = tx.Exec(ctx, `
				UPDATE messages SET read_by = array_append(read_by, $2::text)
				WHERE conversation_id = $1 AND id = ANY($3) AND NOT read_by @> ARRAY[$2::text]
			`, conversationID, reader, ids)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE messages SET read_by = array_append(read_by, $2::text)
				WHERE conversation_id = $1 AND NOT read_by @> ARRAY[$2::text]
			`, conversationID, reader)
		}
		if err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}

		return tx.Commit(ctx)
	})
}

func requireParticipant(ctx context.Context, tx pgx.Tx, conversationID types.ConversationID, userID types.UserID) error {
	var isParticipant bool
	err := tx.QueryRow(ctx, `
		SELECT $2 = ANY(participants) FROM conversations WHERE id = $1
	`, conversationID, userID).Scan(&isParticipant)
	if errors.Is(err, pgx.ErrNoRows) {
		return protocol.NotFoundError("conversation not found")
	}
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return protocol.AuthorizationError("you are not a participant in this conversation")
	}
	return nil
}
