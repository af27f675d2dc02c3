package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataCache_SchemasLoadedOnce(t *testing.T) {
	cache := NewMetadataCache(true)
	calls := 0
	loader := func(context.Context) ([]SchemaInfo, error) {
		calls++
		return []SchemaInfo{{Name: "analytics"}, {Name: "public"}}, nil
	}

	first, err := cache.Schemas(context.Background(), loader)
	require.NoError(t, err)
	second, err := cache.Schemas(context.Background(), loader)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	cache.InvalidateAll()
	_, err = cache.Schemas(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMetadataCache_TableKeysAreIndependent(t *testing.T) {
	cache := NewMetadataCache(true)
	calls := map[string]int{}
	loader := func(_ context.Context, schema string) ([]TableInfo, error) {
		calls[schema]++
		return []TableInfo{{SchemaName: schema, TableName: "t_" + schema}}, nil
	}

	a, err := cache.Tables(context.Background(), "a", loader)
	require.NoError(t, err)
	b, err := cache.Tables(context.Background(), "b", loader)
	require.NoError(t, err)
	_, err = cache.Tables(context.Background(), "a", loader)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 1, "b": 1}, calls)
	assert.Equal(t, "t_a", a[0].TableName)
	assert.Equal(t, "t_b", b[0].TableName)
}

func TestMetadataCache_ColumnKeysArePairs(t *testing.T) {
	cache := NewMetadataCache(true)
	var calls []string
	loader := func(_ context.Context, schema, table string) ([]ColumnInfo, error) {
		calls = append(calls, schema+"."+table)
		return []ColumnInfo{{ColumnName: "id", DataType: "integer", IsNullable: "NO"}}, nil
	}

	for _, pair := range [][2]string{{"a", "t"}, {"b", "t"}, {"a", "u"}, {"a", "t"}, {"b", "t"}} {
		_, err := cache.Columns(context.Background(), pair[0], pair[1], loader)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a.t", "b.t", "a.u"}, calls)
}

func TestMetadataCache_ReturnsCopies(t *testing.T) {
	cache := NewMetadataCache(true)
	loader := func(context.Context) ([]SchemaInfo, error) {
		return []SchemaInfo{{Name: "public"}}, nil
	}

	got, err := cache.Schemas(context.Background(), loader)
	require.NoError(t, err)
	got[0].Name = "mutated"
	got = append(got, SchemaInfo{Name: "extra"})
	_ = got

	again, err := cache.Schemas(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, []SchemaInfo{{Name: "public"}}, again)
}

func TestMetadataCache_ErrorsAreNotCached(t *testing.T) {
	cache := NewMetadataCache(true)
	calls := 0
	loader := func(context.Context) ([]SchemaInfo, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return []SchemaInfo{{Name: "public"}}, nil
	}

	_, err := cache.Schemas(context.Background(), loader)
	require.Error(t, err)

	got, err := cache.Schemas(context.Background(), loader)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, calls)
}

func TestMetadataCache_EmptyListIsCached(t *testing.T) {
	cache := NewMetadataCache(true)
	calls := 0
	loader := func(context.Context, string) ([]TableInfo, error) {
		calls++
		return nil, nil
	}

	for i := 0; i < 3; i++ {
		tables, err := cache.Tables(context.Background(), "empty", loader)
		require.NoError(t, err)
		assert.Empty(t, tables)
	}
	assert.Equal(t, 1, calls)
}

func TestMetadataCache_Disabled(t *testing.T) {
	cache := NewMetadataCache(false)
	calls := 0
	loader := func(context.Context) ([]SchemaInfo, error) {
		calls++
		return []SchemaInfo{{Name: "public"}}, nil
	}

	for i := 0; i < 3; i++ {
		_, err := cache.Schemas(context.Background(), loader)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
	assert.False(t, cache.Enabled())
}

func TestMetadataCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	cache := NewMetadataCache(true)
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context, string) ([]TableInfo, error) {
		calls.Add(1)
		<-release
		return []TableInfo{{SchemaName: "public", TableName: "users"}}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([][]TableInfo, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		started.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			tables, err := cache.Tables(context.Background(), "public", loader)
			assert.NoError(t, err)
			results[i] = tables
		}()
	}
	started.Wait()
	close(release)
	wg.Wait()

	// late arrivals may trigger a second load, but never more than a handful
	assert.LessOrEqual(t, calls.Load(), int32(callers))
	for _, tables := range results {
		assert.Equal(t, []TableInfo{{SchemaName: "public", TableName: "users"}}, tables)
	}

	_, err := cache.Tables(context.Background(), "public", loader)
	require.NoError(t, err)
	assert.LessOrEqual(t, calls.Load(), int32(callers))
}

func TestMetadataCache_InvalidateDuringLoadDoesNotRepopulate(t *testing.T) {
	cache := NewMetadataCache(true)
	calls := 0
	inLoader := make(chan struct{})
	proceed := make(chan struct{})
	loader := func(context.Context) ([]SchemaInfo, error) {
		calls++
		if calls == 1 {
			close(inLoader)
			<-proceed
			return []SchemaInfo{{Name: "stale"}}, nil
		}
		return []SchemaInfo{{Name: "fresh"}}, nil
	}

	done := make(chan []SchemaInfo)
	go func() {
		got, err := cache.Schemas(context.Background(), loader)
		assert.NoError(t, err)
		done <- got
	}()

	<-inLoader
	cache.InvalidateAll()
	close(proceed)
	assert.Equal(t, []SchemaInfo{{Name: "stale"}}, <-done)

	got, err := cache.Schemas(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, []SchemaInfo{{Name: "fresh"}}, got)
	assert.Equal(t, 2, calls)
}

func TestMetadataCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	cache := NewMetadataCache(true)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr atomic.Value
	loader := func(ctx context.Context, schema string) ([]TableInfo, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
			return nil, err
		}
		return []TableInfo{{SchemaName: schema, TableName: "orders"}}, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	resultA := make(chan error, 1)
	go func() {
		_, err := cache.Tables(ctxA, "sales", loader)
		resultA <- err
	}()
	<-started

	resultB := make(chan []TableInfo, 1)
	go func() {
		tables, err := cache.Tables(context.Background(), "sales", loader)
		assert.NoError(t, err)
		resultB <- tables
	}()

	cancelA()
	assert.ErrorIs(t, <-resultA, context.Canceled)

	close(release)
	assert.Equal(t, []TableInfo{{SchemaName: "sales", TableName: "orders"}}, <-resultB)
	assert.Nil(t, loadErr.Load(), "shared load must not see the first caller's cancellation")
	assert.Equal(t, int32(1), calls.Load())
}
