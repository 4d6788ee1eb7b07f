package database

const (
	// DriverPostgres selects lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite selects the pure-Go modernc driver.
	DriverSQLite = "sqlite"
)

// Config holds database connection settings.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// Path is the sqlite database file; ":memory:" keeps everything in process.
	Path string `yaml:"path" envconfig:"DB_PATH"`
}

// DriverName returns the normalized driver, defaulting to postgres.
func (c Config) DriverName() string {
	if c.Driver == "" {
		return DriverPostgres
	}
	return c.Driver
}

func (c Config) postgresDSN() string {
	return "user=" + c.User + " password=" + c.Password + " host=" + c.Host + " port=" + c.Port +
		" dbname=" + c.Name + " sslmode=" + c.SSLMode
}

func (c Config) sqliteDSN() string {
	if c.Path == "" || c.Path == ":memory:" {
		return ":memory:"
	}
	return "file:" + c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}
