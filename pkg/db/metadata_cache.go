package db

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// MetadataCache memoises schema, table and column listings for the life of
// a session. Entries never expire; InvalidateAll drops all of them. Every
// accessor returns a copy the caller may modify freely.
type MetadataCache struct {
	enabled bool

	mu         sync.RWMutex
	generation uint64
	schemas    []SchemaInfo
	hasSchemas bool
	tables     map[string][]TableInfo
	columns    map[tableKey][]ColumnInfo

	group singleflight.Group
}

type tableKey struct {
	schema string
	table  string
}

// NewMetadataCache creates an empty cache. When enabled is false every
// call runs its loader and nothing is stored.
func NewMetadataCache(enabled bool) *MetadataCache {
	return &MetadataCache{
		enabled: enabled,
		tables:  make(map[string][]TableInfo),
		columns: make(map[tableKey][]ColumnInfo),
	}
}

// Enabled reports whether results are memoised.
func (c *MetadataCache) Enabled() bool { return c.enabled }

// Schemas returns the cached schema list, calling loader on a miss.
func (c *MetadataCache) Schemas(ctx context.Context, loader func(context.Context) ([]SchemaInfo, error)) ([]SchemaInfo, error) {
	return getOrLoad(ctx, c, "schemas",
		func() ([]SchemaInfo, bool) { return c.schemas, c.hasSchemas },
		func(v []SchemaInfo) { c.schemas, c.hasSchemas = v, true },
		loader,
	)
}

// Tables returns the cached table list of schema, calling loader on a miss.
func (c *MetadataCache) Tables(ctx context.Context, schema string, loader func(context.Context, string) ([]TableInfo, error)) ([]TableInfo, error) {
	return getOrLoad(ctx, c, "tables\x00"+schema,
		func() ([]TableInfo, bool) { v, ok := c.tables[schema]; return v, ok },
		func(v []TableInfo) { c.tables[schema] = v },
		func(ctx context.Context) ([]TableInfo, error) { return loader(ctx, schema) },
	)
}

// Columns returns the cached column list of schema.table, calling loader on
// a miss.
func (c *MetadataCache) Columns(ctx context.Context, schema, table string, loader func(context.Context, string, string) ([]ColumnInfo, error)) ([]ColumnInfo, error) {
	key := tableKey{schema: schema, table: table}
	return getOrLoad(ctx, c, "columns\x00"+schema+"\x00"+table,
		func() ([]ColumnInfo, bool) { v, ok := c.columns[key]; return v, ok },
		func(v []ColumnInfo) { c.columns[key] = v },
		func(ctx context.Context) ([]ColumnInfo, error) { return loader(ctx, schema, table) },
	)
}

// InvalidateAll empties every bucket. Loads already in flight finish but do
// not repopulate the cache.
func (c *MetadataCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.schemas, c.hasSchemas = nil, false
	c.tables = make(map[string][]TableInfo)
	c.columns = make(map[tableKey][]ColumnInfo)
}

// getOrLoad implements the lookaside read. get and set run under the
// cache lock. Concurrent misses on one key share a single loader call.
//
// The shared load is detached from the cancellation of whichever caller
// started it; each caller stops waiting when its own ctx is done.
func getOrLoad[T any](ctx context.Context, c *MetadataCache, key string, get func() ([]T, bool), set func([]T), load func(context.Context) ([]T, error)) ([]T, error) {
	if !c.enabled {
		return load(ctx)
	}

	c.mu.RLock()
	cached, ok := get()
	c.mu.RUnlock()
	if ok {
		return slices.Clone(cached), nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.RLock()
		generation := c.generation
		c.mu.RUnlock()

		loaded, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			loaded = []T{}
		}

		c.mu.Lock()
		if c.generation == generation {
			set(loaded)
		}
		c.mu.Unlock()
		return loaded, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]T)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
