// Package accounts binds OCI API keys to Telegram users: the account directory, the access-key
// vault, the allow list, and parsing of OCI config files and private keys.
package accounts

import (
	"errors"
	"strings"

	"github.com/m3rciful/ocipanel/internal/provider"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("accounts: not found")
	// ErrAlreadyBound is returned when the OCI user is bound to some Telegram user.
	ErrAlreadyBound = errors.New("accounts: oci user already bound")
	// ErrFingerprintMismatch is returned when a private key does not match the profile.
	ErrFingerprintMismatch = errors.New("accounts: key fingerprint mismatch")
	// ErrInvalidConfig is returned for unusable OCI config files.
	ErrInvalidConfig = errors.New("accounts: invalid oci config")
	// ErrInvalidKey is returned for unusable private keys.
	ErrInvalidKey = errors.New("accounts: invalid private key")
)

// Profile is one OCI account bound to a Telegram user. It is embedded in callback envelopes,
// so the JSON names are part of the button payload format.
type Profile struct {
	UserID         string `json:"userId" db:"user_id"`
	TenantID       string `json:"tenantId" db:"tenancy_id"`
	RegionID       string `json:"regionId" db:"region_id"`
	KeyFingerprint string `json:"keyFingerprint" db:"key_fingerprint"`
	TelegramUserID int64  `json:"telegramUserId" db:"tg_user_id"`
	Name           string `json:"name" db:"name"`
}

// OwnerID returns the Telegram user that owns the profile.
func (p Profile) OwnerID() int64 { return p.TelegramUserID }

// Credentials assembles provider credentials with the stored private key.
func (p Profile) Credentials(privateKey string) provider.Credentials {
	return provider.Credentials{
		TenancyID:   p.TenantID,
		UserID:      p.UserID,
		Region:      p.RegionID,
		Fingerprint: ColonFingerprint(p.KeyFingerprint),
		PrivateKey:  privateKey,
	}
}

// CompactFingerprint strips separators and lowercases, the stored form.
func CompactFingerprint(fp string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fp), ":", ""))
}

// ColonFingerprint renders the stored form as aa:bb:... pairs.
func ColonFingerprint(fp string) string {
	fp = CompactFingerprint(fp)
	var b strings.Builder
	for i := 0; i < len(fp); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		end := min(i+2, len(fp))
		b.WriteString(fp[i:end])
	}
	return b.String()
}
