package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AliciaSchep/pginspect/internal/testutil"
	"github.com/AliciaSchep/pginspect/pkg/config"
	"github.com/AliciaSchep/pginspect/pkg/db"
	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
)

func newIntegrationInspector(t *testing.T) *db.Inspector {
	t.Helper()

	testDB := testutil.GetTestDatabase(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	testDB.Seed(ctx, t)

	cfg, err := config.NewConnectionConfig(testDB.URL)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	manager := db.NewConnectionManager(config.DefaultPoolSettings(), logger)
	require.NoError(t, manager.Initialize(cfg))

	inspector := db.NewInspector(manager, db.WithLogger(logger))
	t.Cleanup(func() { _ = inspector.Close() })
	return inspector
}

func TestIntegration_Browse(t *testing.T) {
	inspector := newIntegrationInspector(t)
	ctx := context.Background()

	schemas, err := inspector.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Contains(t, schemas, db.SchemaInfo{Name: "public"})
	assert.Contains(t, schemas, db.SchemaInfo{Name: "analytics"})
	assert.NotContains(t, schemas, db.SchemaInfo{Name: "pg_toast"})

	tables, err := inspector.ListTables(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, []db.TableInfo{{SchemaName: "public", TableName: "empty_table"}, {SchemaName: "public", TableName: "users"}}, tables,
		"views are excluded and tables are sorted")

	columns, err := inspector.ListColumns(ctx, "public", "users")
	require.NoError(t, err)
	assert.Equal(t, []db.ColumnInfo{
		{ColumnName: "id", DataType: "integer", IsNullable: "NO"},
		{ColumnName: "name", DataType: "text", IsNullable: "YES"},
	}, columns)

	missing, err := inspector.ListColumns(ctx, "public", "does_not_exist")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestIntegration_Query(t *testing.T) {
	inspector := newIntegrationInspector(t)
	ctx := context.Background()

	result, err := inspector.RunQuery(ctx, "SELECT id, name FROM public.users ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Equal(t, []db.Row{
		{"id": db.IntValue(1), "name": db.StringValue("alice")},
		{"id": db.IntValue(2), "name": db.StringValue("bob")},
	}, result.Rows)

	empty, err := inspector.RunQuery(ctx, "SELECT id, note FROM public.empty_table")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "note"}, empty.Columns)
	assert.Empty(t, empty.Rows)

	_, err = inspector.RunQuery(ctx, "DROP TABLE public.users")
	assert.ErrorIs(t, err, apperrors.ErrReadOnlyViolation)

	_, err = inspector.RunQuery(ctx, "SELEC 1")
	assert.ErrorIs(t, err, apperrors.ErrQueryExecution)

	still, err := inspector.RunQuery(ctx, "SELECT count(*) AS n FROM public.users")
	require.NoError(t, err)
	n, _ := still.Rows[0]["n"].Int()
	assert.Equal(t, int64(2), n)

	typed, err := inspector.RunQuery(ctx, `SELECT 12.50::numeric(6,2) AS score, DATE '2024-01-02' AS day,
		TIMESTAMP '2024-01-02 08:30:00' AS at, '\xdeadbeef'::bytea AS blob`)
	require.NoError(t, err)
	row := typed.Rows[0]
	assert.Equal(t, db.KindNumber, row["score"].Kind())
	assert.Equal(t, "12.50", row["score"].String())
	assert.Equal(t, db.StringValue("2024-01-02"), row["day"])
	assert.Equal(t, db.StringValue("2024-01-02 08:30:00"), row["at"])
	assert.Equal(t, db.StringValue(`\xdeadbeef`), row["blob"])

	scores, err := inspector.RunQuery(ctx, "SELECT score FROM analytics.events WHERE score IS NOT NULL LIMIT 1")
	require.NoError(t, err)
	require.Len(t, scores.Rows, 1)
	assert.Equal(t, db.KindNumber, scores.Rows[0]["score"].Kind())
}

func TestIntegration_Paging(t *testing.T) {
	inspector := newIntegrationInspector(t)
	pager := db.NewTablePager(inspector, nil)
	ctx := context.Background()

	page, err := pager.Open(ctx, "public", "users")
	require.NoError(t, err)
	assert.Equal(t, "Rows 1-2 (limit 100)", page.Status)

	page, err = pager.Open(ctx, "analytics", "events")
	require.NoError(t, err)
	assert.Equal(t, "Rows 1-100 (limit 100)", page.Status)

	_, err = pager.Next(ctx)
	require.NoError(t, err)
	page, err = pager.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rows 201-250 (limit 100)", page.Status)

	page, err = pager.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rows 0 (offset 300, limit 100)", page.Status)

	page, err = pager.Open(ctx, "analytics", "Weird Table")
	require.NoError(t, err)
	assert.Equal(t, []string{`has"quote`}, page.Result.Columns)
	assert.Equal(t, "Rows 1-1 (limit 100)", page.Status)

	_, err = pager.Open(ctx, "public", "does_not_exist")
	assert.ErrorIs(t, err, apperrors.ErrQueryExecution)
}

func TestIntegration_UnreachableServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg, err := config.NewConnectionConfig("postgres://nobody@127.0.0.1:1/none?connect_timeout=2")
	require.NoError(t, err)

	manager := db.NewConnectionManager(config.DefaultPoolSettings(), zaptest.NewLogger(t))
	require.NoError(t, manager.Initialize(cfg), "initialize does not dial")

	inspector := db.NewInspector(manager)
	defer inspector.Close()

	_, err = inspector.ListSchemas(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConnection)
}
