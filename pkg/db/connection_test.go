package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AliciaSchep/pginspect/pkg/config"
	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
)

// recordingOpener hands out a fresh sqlmock pool per call and remembers them.
type recordingOpener struct {
	t       *testing.T
	configs []*config.ConnectionConfig
	mocks   []sqlmock.Sqlmock
}

func (o *recordingOpener) open(cfg *config.ConnectionConfig) (*sql.DB, error) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(o.t, err)
	mock.ExpectClose()
	o.configs = append(o.configs, cfg)
	o.mocks = append(o.mocks, mock)
	return mockDB, nil
}

func TestConnectionManager_InitializeWithoutConfig(t *testing.T) {
	manager := NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t))

	err := manager.Initialize(nil)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Nil(t, manager.Config())
}

func TestConnectionManager_AcquireWithoutConfig(t *testing.T) {
	manager := NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t))

	conn, err := manager.Acquire(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotInitialized)
	assert.Nil(t, conn)
}

func TestConnectionManager_LazyInitialization(t *testing.T) {
	opener := &recordingOpener{t: t}
	cfg := mustConfig(t, "postgres://alice@db:5432/shop")
	manager := NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t),
		WithConfig(cfg), WithOpener(opener.open))

	_, open := manager.Stats()
	assert.False(t, open, "pool must not exist before first use")

	conn, err := manager.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release()
	conn.Release()

	require.Len(t, opener.configs, 1)
	assert.Same(t, cfg, opener.configs[0])

	stats, open := manager.Stats()
	require.True(t, open)
	assert.Equal(t, 12, stats.MaxOpenConnections)
	assert.Equal(t, 0, stats.InUse)

	require.NoError(t, manager.Teardown())
	require.NoError(t, opener.mocks[0].ExpectationsWereMet())
}

func TestConnectionManager_InitializeReplacesPool(t *testing.T) {
	opener := &recordingOpener{t: t}
	manager := NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t), WithOpener(opener.open))

	first := mustConfig(t, "postgres://db1/one")
	second := mustConfig(t, "postgres://db2/two")

	require.NoError(t, manager.Initialize(first))
	require.NoError(t, manager.Initialize(second))

	require.Len(t, opener.mocks, 2)
	require.NoError(t, opener.mocks[0].ExpectationsWereMet(), "first pool must be closed")
	assert.Same(t, second, manager.Config())

	// nil re-initializes from the last configuration
	require.NoError(t, manager.Initialize(nil))
	require.Len(t, opener.configs, 3)
	assert.Same(t, second, opener.configs[2])

	require.NoError(t, manager.Teardown())
}

func TestConnectionManager_TeardownIsIdempotent(t *testing.T) {
	neverInitialized := NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t))
	assert.NoError(t, neverInitialized.Teardown())
	assert.NoError(t, neverInitialized.Teardown())

	opener := &recordingOpener{t: t}
	manager := NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t),
		WithConfig(mustConfig(t, "postgres://db/shop")), WithOpener(opener.open))

	conn, err := manager.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release()

	assert.NoError(t, manager.Teardown())
	assert.NoError(t, manager.Teardown())
	_, open := manager.Stats()
	assert.False(t, open)

	// the configuration survives teardown, so the pool reopens on demand
	conn, err = manager.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release()
	assert.Len(t, opener.mocks, 2)
	require.NoError(t, manager.Teardown())
}

func TestConnectionManager_OpenerFailure(t *testing.T) {
	manager := NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t),
		WithConfig(mustConfig(t, "postgres://db/shop")),
		WithOpener(func(*config.ConnectionConfig) (*sql.DB, error) {
			return nil, errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
		}))

	_, err := manager.Acquire(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConnection)
}

func TestConnectionManager_AcquireRespectsCancellation(t *testing.T) {
	manager, _ := newMockManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := manager.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, apperrors.ErrConnection))
}

func TestConnectionManager_ReleaseOnQueryError(t *testing.T) {
	manager, mock := newMockManager(t)
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("boom"))

	func() {
		conn, err := manager.Acquire(context.Background())
		require.NoError(t, err)
		defer conn.Release()

		_, err = conn.QueryContext(context.Background(), "SELECT 1")
		require.Error(t, err)
	}()

	stats, ok := manager.Stats()
	require.True(t, ok)
	assert.Equal(t, 0, stats.InUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionManager_Ping(t *testing.T) {
	manager, mock := newMockManager(t)
	require.NoError(t, manager.Ping(context.Background()))

	stats, ok := manager.Stats()
	require.True(t, ok)
	assert.Equal(t, 0, stats.InUse)
	require.NoError(t, mock.ExpectationsWereMet())
}
