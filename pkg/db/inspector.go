package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
	"github.com/AliciaSchep/pginspect/pkg/logging"
)

// Inspector is the single entry point for browsing and querying. Every
// call checks out its own connection and releases it before returning.
type Inspector struct {
	provider        ConnProvider
	cache           *MetadataCache
	executor        *QueryExecutor
	logger          *zap.Logger
	queryTimeout    time.Duration
	warmConcurrency int
}

// InspectorOption customises an Inspector.
type InspectorOption func(*Inspector)

// WithLogger sets the logger used by the inspector and its executor.
func WithLogger(logger *zap.Logger) InspectorOption {
	return func(i *Inspector) {
		i.logger = logging.OrNop(logger)
	}
}

// WithCache replaces the default enabled metadata cache.
func WithCache(cache *MetadataCache) InspectorOption {
	return func(i *Inspector) {
		i.cache = cache
	}
}

// WithQueryTimeout bounds each database call. Zero means no bound.
func WithQueryTimeout(d time.Duration) InspectorOption {
	return func(i *Inspector) {
		i.queryTimeout = d
	}
}

// WithWarmConcurrency limits how many schemas Warm loads at once.
func WithWarmConcurrency(n int) InspectorOption {
	return func(i *Inspector) {
		if n > 0 {
			i.warmConcurrency = n
		}
	}
}

// NewInspector composes the access layer over provider.
func NewInspector(provider ConnProvider, opts ...InspectorOption) *Inspector {
	i := &Inspector{
		provider:        provider,
		logger:          zap.NewNop(),
		warmConcurrency: 4,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.cache == nil {
		i.cache = NewMetadataCache(true)
	}
	i.executor = NewQueryExecutor(i.logger)
	return i
}

// ListSchemas returns all user-visible schemas, sorted by name.
func (i *Inspector) ListSchemas(ctx context.Context) ([]SchemaInfo, error) {
	return i.cache.Schemas(ctx, func(ctx context.Context) ([]SchemaInfo, error) {
		var schemas []SchemaInfo
		err := i.withConn(ctx, func(ctx context.Context, conn *Conn) error {
			var err error
			schemas, err = LoadSchemas(ctx, conn)
			return err
		})
		return schemas, err
	})
}

// ListTables returns the base tables of schema, sorted by name.
func (i *Inspector) ListTables(ctx context.Context, schema string) ([]TableInfo, error) {
	return i.cache.Tables(ctx, schema, func(ctx context.Context, schema string) ([]TableInfo, error) {
		var tables []TableInfo
		err := i.withConn(ctx, func(ctx context.Context, conn *Conn) error {
			var err error
			tables, err = LoadTables(ctx, conn, schema)
			return err
		})
		return tables, err
	})
}

// ListColumns returns the columns of schema.table in ordinal order.
func (i *Inspector) ListColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	return i.cache.Columns(ctx, schema, table, func(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
		var columns []ColumnInfo
		err := i.withConn(ctx, func(ctx context.Context, conn *Conn) error {
			var err error
			columns, err = LoadColumns(ctx, conn, schema, table)
			return err
		})
		return columns, err
	})
}

// RunQuery executes read-only SQL text. Mutating statements are rejected
// before a connection is acquired.
func (i *Inspector) RunQuery(ctx context.Context, sqlText string) (*QueryResult, error) {
	if err := CheckReadOnly(sqlText); err != nil {
		return nil, err
	}

	var result *QueryResult
	err := i.withConn(ctx, func(ctx context.Context, conn *Conn) error {
		var err error
		result, err = i.executor.Execute(ctx, conn, sqlText)
		return err
	})
	return result, err
}

// ClearMetadataCache drops every cached listing.
func (i *Inspector) ClearMetadataCache() {
	i.cache.InvalidateAll()
	i.logger.Info("metadata cache cleared")
}

// Warm loads the schema list and then every schema's table list
// concurrently, so later listings are served from the cache.
func (i *Inspector) Warm(ctx context.Context) (int, error) {
	schemas, err := i.ListSchemas(ctx)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.warmConcurrency)
	for _, schema := range schemas {
		schema := schema
		g.Go(func() error {
			_, err := i.ListTables(gctx, schema.Name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(schemas), nil
}

// DatabaseInfo holds information about the connected database
type DatabaseInfo struct {
	Database string
	User     string
	Version  string
}

// DatabaseInfo returns basic information about the connected database.
func (i *Inspector) DatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	result, err := i.RunQuery(ctx, "SELECT current_database() AS database, current_user AS usr, version() AS version")
	if err != nil {
		return nil, fmt.Errorf("failed to get database info: %w", err)
	}
	if result.Len() == 0 {
		return nil, fmt.Errorf("%w: database info query returned no rows", apperrors.ErrQueryExecution)
	}

	row := result.Rows[0]
	return &DatabaseInfo{
		Database: row["database"].String(),
		User:     row["usr"].String(),
		Version:  row["version"].String(),
	}, nil
}

// Close releases the pool.
func (i *Inspector) Close() error {
	return i.provider.Teardown()
}

func (i *Inspector) withConn(ctx context.Context, fn func(context.Context, *Conn) error) error {
	if i.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.queryTimeout)
		defer cancel()
	}

	conn, err := i.provider.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return fn(ctx, conn)
}
