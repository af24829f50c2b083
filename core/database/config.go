package database

import (
	"fmt"
	"net/url"
	"strings"
)

// Supported drivers. DriverNone disables the database.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection settings.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	DSN            string `yaml:"dsn" envconfig:"DB_DSN"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	WaitSeconds    int    `yaml:"wait_seconds" envconfig:"DB_WAIT_SECONDS"`
}

// Normalize validates the driver and fills defaults.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case "", DriverNone:
		c.Driver = DriverNone
		return nil
	case "postgresql", "pg":
		c.Driver = DriverPostgres
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid db driver %q; allowed: none, postgres, sqlite", c.Driver)
	}
	if c.Driver == DriverSQLite && strings.TrimSpace(c.DSN) == "" {
		c.DSN = "topup.db"
	}
	if c.Driver == DriverPostgres && c.DSN == "" && c.Host == "" {
		return fmt.Errorf("db: postgres needs either dsn or host")
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 4
	}
	// sqlite serializes writers on a single file
	if c.Driver == DriverSQLite {
		c.MaxConnections = 1
	}
	if c.WaitSeconds <= 0 {
		c.WaitSeconds = 30
	}
	return nil
}

// Enabled reports whether a database is configured.
func (c Config) Enabled() bool {
	return c.Driver != "" && c.Driver != DriverNone
}

// DataSource returns the driver-specific connection string.
func (c Config) DataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver != DriverPostgres {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host,
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.Port != "" {
		u.Host = c.Host + ":" + c.Port
	}
	return u.String()
}

// Target returns a log-safe description of the database.
func (c Config) Target() string {
	if c.Driver == DriverSQLite {
		return c.DataSource()
	}
	if c.Host != "" {
		return c.Host + "/" + c.Name
	}
	if u, err := url.Parse(c.DSN); err == nil && u.Host != "" {
		return u.Host + u.Path
	}
	return c.Driver
}
