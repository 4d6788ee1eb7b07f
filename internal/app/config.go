package app

import (
	"fmt"
	"os"
	"strings"

	coreconfig "github.com/m3rciful/ocipanel/core/config"
	coredatabase "github.com/m3rciful/ocipanel/core/database"
)

// Config is the full configuration file: the core sections plus the database.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Database          coredatabase.Config `yaml:"database"`
}

// CoreConfig satisfies cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads path, applies environment overrides and normalizes every section.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes; see LoadConfig.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(data, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := normalizeDatabase(&cfg.Database); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeDatabase(db *coredatabase.Config) error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	switch driver {
	case "":
		driver = coredatabase.DriverPostgres
	case coredatabase.DriverPostgres, coredatabase.DriverSQLite:
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite", db.Driver)
	}
	db.Driver = driver
	if driver == coredatabase.DriverPostgres {
		if db.Host == "" || db.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	}
	return nil
}
