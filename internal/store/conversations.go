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

// Participants returns the participant ids of a conversation.
func (s *Store) Participants(ctx context.Context, id types.ConversationID) ([]types.UserID, error) {
	var raw []string
	err := s.pool.QueryRow(ctx, `
		SELECT participants FROM conversations WHERE id = $1
	`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, protocol.NotFoundError("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	ids := make([]types.UserID, len(raw))
	for i, v := range raw {
		ids[i] = types.UserID(v)
	}
	return ids, nil
}

// GetOrCreatePrivateConversation returns the single private conversation for
// an unordered user pair, creating it on first use. Racing callers resolve on
// the pair_key unique index, so both always end up with the same id.
func (s *Store) GetOrCreatePrivateConversation(ctx context.Context, a, b types.UserID) (types.Conversation, error) {
	key := pairKey(a, b)

	conv := types.Conversation{
		ID:           types.ConversationID(uuid.NewString()),
		Participants: []types.UserID{a, b},
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, participants, is_group, pair_key)
		VALUES ($1, $2, false, $3)
		ON CONFLICT (pair_key) DO NOTHING
		RETURNING created_at, updated_at
	`, conv.ID, []string{string(a), string(b)}, key).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.Conversation{}, fmt.Errorf("create private conversation: %w", err)
	}

	// Lost the insert race or the conversation already existed; load it.
	return s.conversationByPairKey(ctx, key)
}

func (s *Store) conversationByPairKey(ctx context.Context, key string) (types.Conversation, error) {
	var conv types.Conversation
	var raw []string
	err := s.pool.QueryRow(ctx, `
		SELECT id, participants, is_group, COALESCE(group_name, ''), COALESCE(admin, ''), created_at, updated_at
		FROM conversations WHERE pair_key = $1
	`, key).Scan(&conv.ID, &raw, &conv.IsGroup, &conv.GroupName, &conv.Admin, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Conversation{}, protocol.NotFoundError("conversation not found")
	}
	if err != nil {
		return types.Conversation{}, fmt.Errorf("load private conversation: %w", err)
	}
	conv.Participants = make([]types.UserID, len(raw))
	for i, v := range raw {
		conv.Participants[i] = types.UserID(v)
	}
	return conv, nil
}
