package accounts

import (
	"bytes"
	"crypto/md5"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"regexp"

	"gopkg.in/ini.v1"
)

var fingerprintPattern = regexp.MustCompile(`^[\da-zA-Z]{2}(:[\da-zA-Z]{2}){15}$`)

// ConfigFile is the [DEFAULT] section of an OCI SDK config file.
type ConfigFile struct {
	User        string
	Tenancy     string
	Fingerprint string
	Region      string
	KeyFile     string
}

// LooksLikeConfig reports whether text is pasted config content.
func LooksLikeConfig(text string) bool {
	return bytes.HasPrefix(bytes.TrimSpace([]byte(text)), []byte("[DEFAULT]"))
}

// ParseConfig reads the [DEFAULT] section of an OCI config file.
func ParseConfig(data []byte) (ConfigFile, error) {
	f, err := ini.Load(data)
	if err != nil {
		return ConfigFile{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	sec, err := f.GetSection(ini.DefaultSection)
	if err != nil || len(sec.Keys()) == 0 {
		return ConfigFile{}, fmt.Errorf("%w: missing [DEFAULT] section", ErrInvalidConfig)
	}
	cfg := ConfigFile{
		User:        sec.Key("user").String(),
		Tenancy:     sec.Key("tenancy").String(),
		Fingerprint: sec.Key("fingerprint").String(),
		Region:      sec.Key("region").String(),
		KeyFile:     sec.Key("key_file").String(),
	}
	if err := cfg.Validate(); err != nil {
		return ConfigFile{}, err
	}
	return cfg, nil
}

// Validate checks the fields the panel needs.
func (c ConfigFile) Validate() error {
	switch {
	case c.User == "":
		return fmt.Errorf("%w: user is missing", ErrInvalidConfig)
	case c.Tenancy == "":
		return fmt.Errorf("%w: tenancy is missing", ErrInvalidConfig)
	case c.Region == "":
		return fmt.Errorf("%w: region is missing", ErrInvalidConfig)
	case !fingerprintPattern.MatchString(c.Fingerprint):
		return fmt.Errorf("%w: fingerprint is malformed", ErrInvalidConfig)
	}
	return nil
}

// Profile turns the config into an account bound to telegramUserID. The name defaults to
// the region so a fresh binding is recognizable in lists.
func (c ConfigFile) Profile(telegramUserID int64) Profile {
	return Profile{
		UserID:         c.User,
		TenantID:       c.Tenancy,
		RegionID:       c.Region,
		KeyFingerprint: CompactFingerprint(c.Fingerprint),
		TelegramUserID: telegramUserID,
		Name:           c.Region,
	}
}

// PrivateKey is a parsed RSA API key with its OCI fingerprint.
type PrivateKey struct {
	Key         *rsa.PrivateKey
	Fingerprint string
	// PEM is the PKCS#8 encoding stored in the vault.
	PEM string
}

// ParsePrivateKey accepts a PKCS#8 or PKCS#1 PEM RSA key.
func ParsePrivateKey(data []byte) (PrivateKey, error) {
	block, _ := pem.Decode(bytes.TrimSpace(data))
	if block == nil {
		return PrivateKey{}, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	var key *rsa.PrivateKey
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		rk, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return PrivateKey{}, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
		}
		key = rk
	case "RSA PRIVATE KEY":
		rk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		key = rk
	default:
		return PrivateKey{}, fmt.Errorf("%w: unsupported PEM type %q", ErrInvalidKey, block.Type)
	}

	fp, err := Fingerprint(&key.PublicKey)
	if err != nil {
		return PrivateKey{}, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	out := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return PrivateKey{Key: key, Fingerprint: fp, PEM: string(out)}, nil
}

// Fingerprint is the MD5 of the PKIX DER public key, the form OCI shows in the console,
// returned compact.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	sum := md5.Sum(der)
	return hex.EncodeToString(sum[:]), nil
}
