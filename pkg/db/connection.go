package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/AliciaSchep/pginspect/pkg/config"
	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
	"github.com/AliciaSchep/pginspect/pkg/logging"
)

// Opener creates the pool for a configuration. The pool must not dial
// until a connection is requested.
type Opener func(cfg *config.ConnectionConfig) (*sql.DB, error)

// OpenPgx opens a database/sql pool backed by the pgx driver.
func OpenPgx(cfg *config.ConnectionConfig) (*sql.DB, error) {
	connConfig, err := pgx.ParseConfig(cfg.URL())
	if err != nil {
		return nil, apperrors.Configuration("invalid PostgreSQL URI: %s", logging.SanitizeError(err))
	}
	return stdlib.OpenDB(*connConfig), nil
}

// ConnectionManager owns the connection pool. The pool is created lazily
// from the last configuration and replaced when Initialize is called again.
type ConnectionManager struct {
	mu       sync.Mutex
	cfg      *config.ConnectionConfig
	pool     *sql.DB
	settings config.PoolSettings
	opener   Opener
	logger   *zap.Logger
}

// ManagerOption customises a ConnectionManager.
type ManagerOption func(*ConnectionManager)

// WithOpener replaces the pgx pool opener, typically with a go-sqlmock pool.
func WithOpener(opener Opener) ManagerOption {
	return func(m *ConnectionManager) {
		m.opener = opener
	}
}

// WithConfig records cfg so the first Acquire can open the pool lazily.
func WithConfig(cfg *config.ConnectionConfig) ManagerOption {
	return func(m *ConnectionManager) {
		m.cfg = cfg
	}
}

// NewConnectionManager creates a manager with no open pool.
func NewConnectionManager(settings config.PoolSettings, logger *zap.Logger, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		settings: settings,
		opener:   OpenPgx,
		logger:   logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize opens a pool for cfg, tearing down any existing pool first.
// A nil cfg re-initializes from the last configuration; with none on record
// it fails with ErrConfiguration.
func (m *ConnectionManager) Initialize(cfg *config.ConnectionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg == nil {
		if m.cfg == nil {
			return apperrors.Configuration("database configuration is not set")
		}
		cfg = m.cfg
	}

	_ = m.closePoolLocked()
	return m.openLocked(cfg)
}

// Acquire checks a connection out of the pool, opening the pool first if
// needed. The caller must Release it; Release is safe to defer immediately.
func (m *ConnectionManager) Acquire(ctx context.Context) (*Conn, error) {
	pool, err := m.ensurePool()
	if err != nil {
		return nil, err
	}

	conn, err := pool.Conn(ctx)
	if err != nil {
		m.logger.Warn("failed to acquire connection",
			zap.String("error", logging.SanitizeError(err)))
		return nil, apperrors.Connection("acquire connection", err)
	}
	return &Conn{conn: conn, logger: m.logger}, nil
}

// Ping verifies that the database is reachable.
func (m *ConnectionManager) Ping(ctx context.Context) error {
	conn, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if err := conn.conn.PingContext(ctx); err != nil {
		return apperrors.Connection("ping", err)
	}
	return nil
}

// Teardown closes the pool. The configuration is kept so a later Acquire
// reopens lazily. Teardown is idempotent and safe to call multiple times,
// including on a manager that was never initialized.
func (m *ConnectionManager) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closePoolLocked()
}

// Config returns the last configuration, or nil.
func (m *ConnectionManager) Config() *config.ConnectionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Stats reports pool statistics; ok is false when no pool is open.
func (m *ConnectionManager) Stats() (stats sql.DBStats, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool == nil {
		return sql.DBStats{}, false
	}
	return m.pool.Stats(), true
}

func (m *ConnectionManager) ensurePool() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pool != nil {
		return m.pool, nil
	}
	if m.cfg == nil {
		return nil, apperrors.ErrNotInitialized
	}
	if err := m.openLocked(m.cfg); err != nil {
		return nil, err
	}
	return m.pool, nil
}

func (m *ConnectionManager) openLocked(cfg *config.ConnectionConfig) error {
	pool, err := m.opener(cfg)
	if err != nil {
		if errors.Is(err, apperrors.ErrConfiguration) {
			return err
		}
		return apperrors.Connection("open pool", err)
	}

	pool.SetMaxOpenConns(m.settings.MaxOpen())
	pool.SetMaxIdleConns(m.settings.Size)
	pool.SetConnMaxIdleTime(m.settings.MaxIdleTime)

	m.cfg = cfg
	m.pool = pool
	m.logger.Info("created connection pool",
		zap.String("url", cfg.Redacted()),
		zap.Int("max_open", m.settings.MaxOpen()),
		zap.Int("max_idle", m.settings.Size))
	return nil
}

func (m *ConnectionManager) closePoolLocked() error {
	if m.pool == nil {
		return nil
	}
	pool := m.pool
	m.pool = nil

	if err := pool.Close(); err != nil {
		m.logger.Warn("failed to close connection pool",
			zap.String("error", logging.SanitizeError(err)))
		return apperrors.Connection("close pool", err)
	}
	m.logger.Info("closed connection pool")
	return nil
}

// Conn is a connection checked out of the pool.
type Conn struct {
	conn    *sql.Conn
	logger  *zap.Logger
	release sync.Once
}

// QueryContext runs query on this connection.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

// Release returns the connection to the pool. Calls after the first are no-ops.
func (c *Conn) Release() {
	c.release.Do(func() {
		if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			c.logger.Warn("failed to release connection",
				zap.String("error", logging.SanitizeError(err)))
		}
	})
}
