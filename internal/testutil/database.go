package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the image started when no external database is configured.
const PostgresImage = "postgres:16-alpine"

// URLEnv points the integration tests at an existing database instead of
// a container.
const URLEnv = "PGINSPECT_TEST_URL"

// TestDatabase is a reachable PostgreSQL instance for integration tests.
type TestDatabase struct {
	Container testcontainers.Container
	URL       string
}

var (
	sharedDB     *TestDatabase
	sharedDBOnce sync.Once
	sharedDBErr  error
)

// GetTestDatabase returns a database shared by every test in the run. It
// uses $PGINSPECT_TEST_URL when set and otherwise starts a container. The
// test is skipped in -short mode or when neither is available.
func GetTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}

	sharedDBOnce.Do(func() {
		sharedDB, sharedDBErr = setupTestDatabase()
	})

	if sharedDBErr != nil {
		t.Skipf("skipping integration test - no database available: %v", sharedDBErr)
	}
	return sharedDB
}

func setupTestDatabase() (*TestDatabase, error) {
	if url := os.Getenv(URLEnv); url != "" {
		return &TestDatabase{URL: url}, nil
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "pginspect_test",
			"POSTGRES_USER":     "pginspect",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &TestDatabase{
		Container: container,
		URL: fmt.Sprintf("postgres://pginspect:test_password@%s:%s/pginspect_test?sslmode=disable",
			host, port.Port()),
	}, nil
}

// Exec runs sqlText, which may hold several statements, on a fresh
// connection. Fixtures use it to create and drop tables, which the
// read-only access layer refuses to do.
func (td *TestDatabase) Exec(ctx context.Context, sqlText string) error {
	db, err := sql.Open("pgx", td.URL)
	if err != nil {
		return fmt.Errorf("failed to open test database: %w", err)
	}
	defer db.Close()

	// the server may still be finishing startup
	for attempt := 0; ; attempt++ {
		if err = db.PingContext(ctx); err == nil || attempt == 10 {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("failed to reach test database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("failed to execute fixture SQL: %w", err)
	}
	return nil
}

// Seed creates the fixture schema, registering its removal with t.Cleanup.
func (td *TestDatabase) Seed(ctx context.Context, t *testing.T) {
	t.Helper()
	if err := td.Exec(ctx, CleanupSQL+SeedSQL); err != nil {
		t.Fatalf("failed to seed test database: %v", err)
	}
	t.Cleanup(func() {
		if err := td.Exec(context.Background(), CleanupSQL); err != nil {
			t.Logf("failed to clean up test database: %v", err)
		}
	})
}

// SeedSQL creates a small multi-schema fixture: two public tables, an
// identifier that needs quoting, and a table long enough to page through.
const SeedSQL = `
CREATE TABLE public.users (
	id INTEGER PRIMARY KEY,
	name TEXT
);
INSERT INTO public.users (id, name) VALUES (1, 'alice'), (2, 'bob');

CREATE TABLE public.empty_table (
	id INTEGER,
	note TEXT NOT NULL
);

CREATE VIEW public.user_names AS SELECT name FROM public.users;

CREATE SCHEMA analytics;

CREATE TABLE analytics.events (
	id SERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	score NUMERIC(6,2),
	happened_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
INSERT INTO analytics.events (kind, score)
SELECT CASE WHEN g % 3 = 0 THEN 'click' ELSE 'view' END, g / 10.0
FROM generate_series(1, 250) AS g;

CREATE TABLE analytics."Weird Table" (
	"has""quote" TEXT
);
INSERT INTO analytics."Weird Table" VALUES ('ok');
`

// CleanupSQL removes everything SeedSQL creates.
const CleanupSQL = `
DROP SCHEMA IF EXISTS analytics CASCADE;
DROP VIEW IF EXISTS public.user_names;
DROP TABLE IF EXISTS public.empty_table;
DROP TABLE IF EXISTS public.users;
`
