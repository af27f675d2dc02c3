package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AliciaSchep/pginspect/pkg/config"
)

func mustConfig(t *testing.T, rawURL string) *config.ConnectionConfig {
	t.Helper()
	cfg, err := config.NewConnectionConfig(rawURL)
	require.NoError(t, err)
	return cfg
}

// newMockManager returns a manager whose pool is a go-sqlmock database.
// Statements are matched as regular expressions.
func newMockManager(t *testing.T) (*ConnectionManager, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	manager := NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t),
		WithConfig(mustConfig(t, "postgres://tester@localhost:5432/shop")),
		WithOpener(func(*config.ConnectionConfig) (*sql.DB, error) { return mockDB, nil }),
	)
	return manager, mock
}

// countingProvider records how many connections were checked out.
type countingProvider struct {
	ConnProvider
	acquired atomic.Int32
}

func (p *countingProvider) Acquire(ctx context.Context) (*Conn, error) {
	p.acquired.Add(1)
	return p.ConnProvider.Acquire(ctx)
}

func mockRows(columns []string, rows ...[]any) *sqlmock.Rows {
	result := sqlmock.NewRows(columns)
	for _, row := range rows {
		values := make([]driver.Value, len(row))
		for i, v := range row {
			values[i] = v
		}
		result.AddRow(values...)
	}
	return result
}

func newMockInspector(t *testing.T, opts ...InspectorOption) (*Inspector, sqlmock.Sqlmock, *countingProvider) {
	t.Helper()
	manager, mock := newMockManager(t)
	provider := &countingProvider{ConnProvider: manager}
	opts = append([]InspectorOption{WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewInspector(provider, opts...), mock, provider
}
