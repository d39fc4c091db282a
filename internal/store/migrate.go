package store

import "context"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		public_id  TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'offline',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id          TEXT PRIMARY KEY,
		requester   TEXT NOT NULL REFERENCES users(id),
		recipient   TEXT NOT NULL REFERENCES users(id),
		status      TEXT NOT NULL DEFAULT 'pending',
		blocked_by  TEXT,
		prev_status TEXT NOT NULL DEFAULT 'none',
		pair_key    TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS friendships_requester_status ON friendships (requester, status)`,
	`CREATE INDEX IF NOT EXISTS friendships_recipient_status ON friendships (recipient, status)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id           TEXT PRIMARY KEY,
		participants TEXT[] NOT NULL,
		is_group     BOOLEAN NOT NULL DEFAULT false,
		group_name   TEXT,
		admin        TEXT,
		last_message TEXT,
		pair_key     TEXT UNIQUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS conversations_participants ON conversations USING GIN (participants)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender          TEXT NOT NULL REFERENCES users(id),
		text            TEXT NOT NULL DEFAULT '',
		attachments     TEXT[] NOT NULL DEFAULT '{}',
		read_by         TEXT[] NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created ON messages (conversation_id, created_at)`,
}

// Migrate applies the schema. Statements are idempotent so startup can run it
// unconditionally.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
