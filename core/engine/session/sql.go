package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLBackend stores blobs in the engine_sessions table. The statements are portable between
// postgres and sqlite; placeholders are rebound for the connected driver.
type SQLBackend struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLBackend wraps an open database that has the engine_sessions migration applied.
func NewSQLBackend(db *sqlx.DB) *SQLBackend {
	return &SQLBackend{db: db, now: time.Now}
}

// Load fetches the blob for key.
func (b *SQLBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	q := b.db.Rebind(`SELECT payload FROM engine_sessions WHERE session_key = ?`)
	if err := b.db.GetContext(ctx, &blob, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load %s: %w", key, err)
	}
	return blob, nil
}

// Save upserts the blob for key.
func (b *SQLBackend) Save(ctx context.Context, key string, blob []byte) error {
	q := b.db.Rebind(`INSERT INTO engine_sessions (session_key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	if _, err := b.db.ExecContext(ctx, q, key, blob, b.now().Unix()); err != nil {
		return fmt.Errorf("session: save %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	q := b.db.Rebind(`DELETE FROM engine_sessions WHERE session_key = ?`)
	if _, err := b.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("session: delete %s: %w", key, err)
	}
	return nil
}

// Purge deletes rows last written before the cutoff.
func (b *SQLBackend) Purge(ctx context.Context, before time.Time) (int, error) {
	q := b.db.Rebind(`DELETE FROM engine_sessions WHERE updated_at < ?`)
	res, err := b.db.ExecContext(ctx, q, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("session: purge: %w", err)
	}
	return affected(res, "purge")
}

func affected(res sql.Result, op string) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session: %s: rows affected: %w", op, err)
	}
	return int(n), nil
}
