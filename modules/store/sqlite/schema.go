package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS verifications (
	key           TEXT PRIMARY KEY,
	user_id       INTEGER NOT NULL,
	chat_id       INTEGER NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	correct_index INTEGER NOT NULL,
	message_id    INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	deadline      INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verifications_deadline ON verifications(deadline);
CREATE INDEX IF NOT EXISTS idx_verifications_expires ON verifications(expires_at);
`

func migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}
