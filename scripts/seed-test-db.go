package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/AliciaSchep/pginspect/internal/testutil"
	"github.com/AliciaSchep/pginspect/pkg/config"
)

// Seeds the fixture schemas used by the integration tests into an existing
// database, so pginspect can be tried against them by hand.
func main() {
	fmt.Println("🌱 Seeding test database...")

	rawURL := os.Getenv(testutil.URLEnv)
	if rawURL == "" {
		log.Fatalf("❌ No test database configured. Please set %s.", testutil.URLEnv)
	}
	cfg, err := config.NewConnectionConfig(rawURL)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	fmt.Printf("📡 Connecting to test database: %s\n", cfg.Redacted())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	td := &testutil.TestDatabase{URL: cfg.URL()}

	fmt.Println("🧹 Removing previous fixtures...")
	if err := td.Exec(ctx, testutil.CleanupSQL); err != nil {
		log.Fatalf("❌ Failed to clean up fixtures: %v", err)
	}

	fmt.Println("🔧 Setting up test schema and seed data...")
	if err := td.Exec(ctx, testutil.SeedSQL); err != nil {
		log.Fatalf("❌ Failed to seed fixtures: %v", err)
	}

	fmt.Println("✅ Test database seeded successfully!")
	fmt.Printf("🧪 Try: pginspect \"$%s\"\n", testutil.URLEnv)
}
