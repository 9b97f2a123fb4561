package main

import (
	"context"
	"fmt"
	"log"

	"github.com/AliciaSchep/pgchat/internal/testutil"
	"github.com/AliciaSchep/pgchat/pkg/db"
)

func main() {
	fmt.Println("🌱 Seeding test database...")

	// Get database configuration from environment variables
	cfg := testutil.GetRealDatabaseConfig()
	fmt.Printf("📡 Connecting to test database: %s\n", cfg.MaskedURI())

	ctx := context.Background()
	err := testutil.WithConn(ctx, cfg.URI(), func(c *db.Conn) error {
		fmt.Println("🔧 Setting up test schema and seed data...")
		return testutil.SetupTestSchema(ctx, c.Exec)
	})
	if err != nil {
		log.Fatalf("❌ Failed to seed test database: %v", err)
	}

	fmt.Printf("✅ Test database seeded with %d users\n", testutil.SeedUserCount)
	fmt.Println("🧪 Ready for test execution")
}
