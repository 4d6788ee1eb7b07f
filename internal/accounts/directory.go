package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/ocipanel/core/logger"
	"github.com/m3rciful/ocipanel/internal/provider"
)

const componentAccounts = "accounts"

// Directory is the durable account store over sqlx. Statements are portable between
// postgres and sqlite.
type Directory struct {
	db *sqlx.DB
}

// NewDirectory wraps an open, migrated database.
func NewDirectory(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

const profileColumns = `user_id, tenancy_id, region_id, key_fingerprint, tg_user_id, name`

// Add binds a new account. It fails with ErrAlreadyBound when the OCI user is taken.
func (d *Directory) Add(ctx context.Context, p Profile) error {
	if _, err := d.Get(ctx, p.UserID); err == nil {
		return ErrAlreadyBound
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	p.KeyFingerprint = CompactFingerprint(p.KeyFingerprint)
	q := d.db.Rebind(`INSERT INTO oracle_accounts (` + profileColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := d.db.ExecContext(ctx, q, p.UserID, p.TenantID, p.RegionID, p.KeyFingerprint, p.TelegramUserID, p.Name); err != nil {
		return fmt.Errorf("accounts: add %s: %w", p.UserID, err)
	}
	logger.Info(ctx, componentAccounts, "account.added",
		slog.String("account_id", p.UserID),
		slog.String("region", p.RegionID),
		slog.Int64("user_id", p.TelegramUserID),
	)
	return nil
}

// Get returns the account bound for the OCI user id.
func (d *Directory) Get(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	q := d.db.Rebind(`SELECT ` + profileColumns + ` FROM oracle_accounts WHERE user_id = ?`)
	if err := d.db.GetContext(ctx, &p, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("accounts: get %s: %w", userID, err)
	}
	p.KeyFingerprint = strings.TrimSpace(p.KeyFingerprint)
	return p, nil
}

// ListByOwner returns the accounts of a Telegram user ordered by name.
func (d *Directory) ListByOwner(ctx context.Context, telegramUserID int64) ([]Profile, error) {
	var out []Profile
	q := d.db.Rebind(`SELECT ` + profileColumns + ` FROM oracle_accounts WHERE tg_user_id = ? ORDER BY name, user_id`)
	if err := d.db.SelectContext(ctx, &out, q, telegramUserID); err != nil {
		return nil, fmt.Errorf("accounts: list for %d: %w", telegramUserID, err)
	}
	for i := range out {
		out[i].KeyFingerprint = strings.TrimSpace(out[i].KeyFingerprint)
	}
	return out, nil
}

// Rename changes the display name of an account owned by telegramUserID.
func (d *Directory) Rename(ctx context.Context, userID string, telegramUserID int64, name string) error {
	q := d.db.Rebind(`UPDATE oracle_accounts SET name = ? WHERE user_id = ? AND tg_user_id = ?`)
	res, err := d.db.ExecContext(ctx, q, name, userID, telegramUserID)
	if err != nil {
		return fmt.Errorf("accounts: rename %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove unbinds an account owned by telegramUserID and reports whether a row was removed.
func (d *Directory) Remove(ctx context.Context, userID string, telegramUserID int64) (bool, error) {
	q := d.db.Rebind(`DELETE FROM oracle_accounts WHERE user_id = ? AND tg_user_id = ?`)
	res, err := d.db.ExecContext(ctx, q, userID, telegramUserID)
	if err != nil {
		return false, fmt.Errorf("accounts: remove %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info(ctx, componentAccounts, "account.removed",
			slog.String("account_id", userID),
			slog.Int64("user_id", telegramUserID),
		)
	}
	return n > 0, nil
}

// PutKey stores a private key under its fingerprint. Existing keys are kept.
func (d *Directory) PutKey(ctx context.Context, fingerprint, privateKeyPEM string) error {
	q := d.db.Rebind(`INSERT INTO access_keys (key_fingerprint, private_key) VALUES (?, ?)
		ON CONFLICT (key_fingerprint) DO NOTHING`)
	if _, err := d.db.ExecContext(ctx, q, CompactFingerprint(fingerprint), privateKeyPEM); err != nil {
		return fmt.Errorf("accounts: put key: %w", err)
	}
	return nil
}

// Key returns the PEM stored for fingerprint.
func (d *Directory) Key(ctx context.Context, fingerprint string) (string, error) {
	var pemText string
	q := d.db.Rebind(`SELECT private_key FROM access_keys WHERE key_fingerprint = ?`)
	if err := d.db.GetContext(ctx, &pemText, q, CompactFingerprint(fingerprint)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("accounts: key: %w", err)
	}
	return pemText, nil
}

// HasKey reports whether a key with fingerprint is stored.
func (d *Directory) HasKey(ctx context.Context, fingerprint string) (bool, error) {
	_, err := d.Key(ctx, fingerprint)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// CleanUnusedKeys deletes keys no account references and returns how many went away.
func (d *Directory) CleanUnusedKeys(ctx context.Context) (int, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM access_keys
		WHERE key_fingerprint NOT IN (SELECT key_fingerprint FROM oracle_accounts)`)
	if err != nil {
		return 0, fmt.Errorf("accounts: clean keys: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info(ctx, componentAccounts, "keys.cleaned", slog.Int64("count", n))
	}
	return int(n), nil
}

// Allowed is one allow-list entry.
type Allowed struct {
	TelegramUserID int64  `db:"tg_user_id"`
	Identity       string `db:"identity"`
}

// Allow adds or refreshes a user on the allow list.
func (d *Directory) Allow(ctx context.Context, telegramUserID int64, identity string) error {
	q := d.db.Rebind(`INSERT INTO allow_list (tg_user_id, identity) VALUES (?, ?)
		ON CONFLICT (tg_user_id) DO UPDATE SET identity = excluded.identity`)
	if _, err := d.db.ExecContext(ctx, q, telegramUserID, identity); err != nil {
		return fmt.Errorf("accounts: allow %d: %w", telegramUserID, err)
	}
	return nil
}

// Deny removes a user from the allow list and reports whether it was present.
func (d *Directory) Deny(ctx context.Context, telegramUserID int64) (bool, error) {
	q := d.db.Rebind(`DELETE FROM allow_list WHERE tg_user_id = ?`)
	res, err := d.db.ExecContext(ctx, q, telegramUserID)
	if err != nil {
		return false, fmt.Errorf("accounts: deny %d: %w", telegramUserID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IsAllowed reports whether the user is on the allow list.
func (d *Directory) IsAllowed(ctx context.Context, telegramUserID int64) (bool, error) {
	var n int
	q := d.db.Rebind(`SELECT COUNT(*) FROM allow_list WHERE tg_user_id = ?`)
	if err := d.db.GetContext(ctx, &n, q, telegramUserID); err != nil {
		return false, fmt.Errorf("accounts: allow lookup %d: %w", telegramUserID, err)
	}
	return n > 0, nil
}

// ListAllowed returns every allow-list entry.
func (d *Directory) ListAllowed(ctx context.Context) ([]Allowed, error) {
	var out []Allowed
	if err := d.db.SelectContext(ctx, &out, `SELECT tg_user_id, identity FROM allow_list ORDER BY tg_user_id`); err != nil {
		return nil, fmt.Errorf("accounts: list allowed: %w", err)
	}
	return out, nil
}

// Credentials resolves the account and its stored key into provider credentials.
func (d *Directory) Credentials(ctx context.Context, p Profile) (provider.Credentials, error) {
	key, err := d.Key(ctx, p.KeyFingerprint)
	if err != nil {
		return provider.Credentials{}, err
	}
	return p.Credentials(key), nil
}

// SeedAdmin puts the administrator on the allow list so enabling the list never locks the
// admin out. A zero id is a no-op.
func SeedAdmin(adminID int64) func(ctx context.Context, db *sqlx.DB) error {
	return func(ctx context.Context, db *sqlx.DB) error {
		if adminID == 0 {
			return nil
		}
		return NewDirectory(db).Allow(ctx, adminID, "admin")
	}
}
