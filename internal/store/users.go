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

// GetUser loads a user's identity by internal id.
func (s *Store) GetUser(ctx context.Context, id types.UserID) (types.Identity, error) {
	var ident types.Identity
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, public_id, status FROM users WHERE id = $1
	`, id).Scan(&ident.ID, &ident.Name, &ident.PublicID, &ident.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Identity{}, protocol.NotFoundError("user not found")
	}
	if err != nil {
		return types.Identity{}, fmt.Errorf("load user: %w", err)
	}
	return ident, nil
}

// FindByPublicID resolves a user from the public handle used in friend
// requests.
func (s *Store) FindByPublicID(ctx context.Context, publicID string) (types.Identity, error) {
	var ident types.Identity
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, public_id, status FROM users WHERE public_id = $1
	`, publicID).Scan(&ident.ID, &ident.Name, &ident.PublicID, &ident.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Identity{}, protocol.NotFoundError("recipient not found")
	}
	if err != nil {
		return types.Identity{}, fmt.Errorf("find user: %w", err)
	}
	return ident, nil
}

// CreateUser registers a user record. Credential handling lives in the HTTP
// auth service; the realtime layer only needs the identity row.
func (s *Store) CreateUser(ctx context.Context, name, publicID string) (types.Identity, error) {
	ident := types.Identity{
		ID:       types.UserID(uuid.NewString()),
		Name:     name,
		PublicID: publicID,
		Status:   types.StatusOffline,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, public_id, name, status) VALUES ($1, $2, $3, $4)
	`, ident.ID, ident.PublicID, ident.Name, ident.Status)
	if isUniqueViolation(err) {
		return types.Identity{}, protocol.ConflictError("userId already taken")
	}
	if err != nil {
		return types.Identity{}, fmt.Errorf("create user: %w", err)
	}
	return ident, nil
}

// SetUserStatus persists the presence status column. Best effort from the
// coordinator's point of view; transient failures are retried here.
func (s *Store) SetUserStatus(ctx context.Context, id types.UserID, status string) error {
	return s.retry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			UPDATE users SET status = $2, updated_at = now() WHERE id = $1
		`, id, status)
		return err
	})
}
