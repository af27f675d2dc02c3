package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
	"github.com/AliciaSchep/pginspect/pkg/logging"
)

// DefaultEnvFile is read automatically when present in the working directory.
const DefaultEnvFile = ".env"

// Settings holds process-level configuration read from the environment and
// an optional config file (.env, .yaml or .toml).
type Settings struct {
	DatabaseURL    string        `yaml:"database_url" env:"DATABASE_URL"`
	Pool           PoolSettings  `yaml:"pool"`
	QueryTimeout   time.Duration `yaml:"query_timeout" env:"QUERY_TIMEOUT" env-default:"0s"`
	MetadataCache  bool          `yaml:"metadata_cache" env:"METADATA_CACHE" env-default:"true"`
	ConnectRetries int           `yaml:"connect_retries" env:"CONNECT_RETRIES" env-default:"2"`
	LogLevel       string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"warn"`
	LogFile        string        `yaml:"log_file" env:"LOG_FILE"`
}

// PoolSettings sizes the connection pool. Size connections are kept idle;
// up to Size+MaxOverflow may be open at once.
type PoolSettings struct {
	Size        int           `yaml:"size" env:"POOL_SIZE" env-default:"4"`
	MaxOverflow int           `yaml:"max_overflow" env:"POOL_MAX_OVERFLOW" env-default:"8"`
	MaxIdleTime time.Duration `yaml:"max_idle_time" env:"POOL_MAX_IDLE_TIME" env-default:"5m"`
}

// DefaultPoolSettings returns the pool sizing used when nothing is configured.
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{Size: 4, MaxOverflow: 8, MaxIdleTime: 5 * time.Minute}
}

// MaxOpen is the hard cap on simultaneously open connections.
func (p PoolSettings) MaxOpen() int {
	return p.Size + p.MaxOverflow
}

// LoadSettings reads settings from path, or from ./.env when path is empty
// and that file exists, with environment variables taking effect on top.
func LoadSettings(path string) (*Settings, error) {
	settings := &Settings{}

	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			path = DefaultEnvFile
		}
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, settings); err != nil {
			return nil, apperrors.Configuration("failed to read %s: %v", path, err)
		}
	} else if err := cleanenv.ReadEnv(settings); err != nil {
		return nil, apperrors.Configuration("failed to read environment: %v", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks numeric settings for sane ranges.
func (s *Settings) Validate() error {
	if s.Pool.Size <= 0 {
		return apperrors.Configuration("pool size must be positive, got %d", s.Pool.Size)
	}
	if s.Pool.MaxOverflow < 0 {
		return apperrors.Configuration("pool max overflow must not be negative, got %d", s.Pool.MaxOverflow)
	}
	if s.QueryTimeout < 0 {
		return apperrors.Configuration("query timeout must not be negative, got %s", s.QueryTimeout)
	}
	if s.ConnectRetries < 0 {
		return apperrors.Configuration("connect retries must not be negative, got %d", s.ConnectRetries)
	}
	return nil
}

// ConnectionConfig is a validated PostgreSQL connection URL. The zero value
// is not usable; construct it with NewConnectionConfig.
type ConnectionConfig struct {
	url      string
	host     string
	port     string
	user     string
	database string
}

// NewConnectionConfig validates rawURL and wraps it. The URL must use the
// postgres:// or postgresql:// scheme and be accepted by the driver.
func NewConnectionConfig(rawURL string) (*ConnectionConfig, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, apperrors.Configuration("database configuration is not set")
	}

	if !strings.HasPrefix(rawURL, "postgresql://") && !strings.HasPrefix(rawURL, "postgres://") {
		return nil, apperrors.Configuration("invalid PostgreSQL URI %q: must start with postgresql:// or postgres://",
			logging.SanitizeConnectionString(rawURL))
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		// url.Error text can quote parts of the password
		return nil, apperrors.Configuration("failed to parse PostgreSQL URI %q: percent-encode special characters in the password",
			logging.SanitizeConnectionString(rawURL))
	}
	if _, err := pgx.ParseConfig(rawURL); err != nil {
		return nil, apperrors.Configuration("invalid PostgreSQL URI: %s", logging.SanitizeError(err))
	}

	cfg := &ConnectionConfig{
		url:      rawURL,
		host:     parsedURL.Hostname(),
		port:     parsedURL.Port(),
		database: strings.TrimPrefix(parsedURL.Path, "/"),
	}
	if parsedURL.User != nil {
		cfg.user = parsedURL.User.Username()
	}
	return cfg, nil
}

// URL returns the connection URL including credentials.
func (c *ConnectionConfig) URL() string { return c.url }

// Redacted returns the URL with the password hidden, for display and logs.
func (c *ConnectionConfig) Redacted() string {
	return logging.SanitizeConnectionString(c.url)
}

// String never exposes the password.
func (c *ConnectionConfig) String() string { return c.Redacted() }

// Host returns the host part of the URL, which may be empty.
func (c *ConnectionConfig) Host() string { return c.host }

// Port returns the port part of the URL, which may be empty.
func (c *ConnectionConfig) Port() string { return c.port }

// User returns the user name of the URL, which may be empty.
func (c *ConnectionConfig) User() string { return c.user }

// Database returns the database name of the URL, which may be empty.
func (c *ConnectionConfig) Database() string { return c.database }

// ConnectionParams holds discrete connection settings from CLI flags and
// libpq environment variables.
type ConnectionParams struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// NewConnectionParamsFromFlags creates ConnectionParams from individual CLI
// flags, falling back to PG* environment variables and defaults.
func NewConnectionParamsFromFlags(host, user, password, database string, port int) ConnectionParams {
	params := ConnectionParams{
		Host:     getStringWithFallback(host, "PGHOST", "localhost"),
		Port:     getIntWithFallback(port, "PGPORT", 5432),
		Database: getStringWithFallback(database, "PGDATABASE", ""),
		User:     getStringWithFallback(user, "PGUSER", ""),
		Password: getStringWithFallback(password, "PGPASSWORD", ""),
		SSLMode:  getStringWithFallback("", "PGSSLMODE", ""),
	}

	// If no user specified, default to current user
	if params.User == "" {
		if currentUser := os.Getenv("USER"); currentUser != "" {
			params.User = currentUser
		}
	}

	return params
}

// URL renders the parameters as a postgres:// URL.
func (p ConnectionParams) URL() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}

// Validate checks if the parameters have the required fields
func (p ConnectionParams) Validate() error {
	if p.Host == "" {
		return apperrors.Configuration("database host is required")
	}
	if p.Database == "" {
		return apperrors.Configuration("database name is required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return apperrors.Configuration("invalid port: %d", p.Port)
	}
	return nil
}

// ResolveConnection picks the connection URL by precedence: the
// -c/--connection flag, then the positional URI, then DATABASE_URL, then
// discrete parameters when a database name is known.
func ResolveConnection(connectionFlag, uriArg string, settings *Settings, params ConnectionParams) (*ConnectionConfig, error) {
	switch {
	case connectionFlag != "":
		return NewConnectionConfig(connectionFlag)
	case uriArg != "":
		return NewConnectionConfig(uriArg)
	case settings != nil && settings.DatabaseURL != "":
		return NewConnectionConfig(settings.DatabaseURL)
	case params.Database != "":
		if err := params.Validate(); err != nil {
			return nil, err
		}
		return NewConnectionConfig(params.URL())
	}
	return nil, apperrors.Configuration("set DATABASE_URL or pass -c/--connection")
}

// getStringWithFallback returns the flag value, or env var, or default
func getStringWithFallback(flag, envVar, defaultValue string) string {
	if flag != "" {
		return flag
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntWithFallback returns the flag value, or env var, or default
func getIntWithFallback(flag int, envVar string, defaultValue int) int {
	if flag != 0 {
		return flag
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.Atoi(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Describe summarises the target for the startup banner.
func (c *ConnectionConfig) Describe() string {
	host := c.host
	if host == "" {
		host = "localhost"
	}
	if c.port != "" {
		host = net.JoinHostPort(host, c.port)
	}
	if c.user != "" {
		return fmt.Sprintf("%s@%s/%s", c.user, host, c.database)
	}
	return fmt.Sprintf("%s/%s", host, c.database)
}
