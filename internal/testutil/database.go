package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/AliciaSchep/pgchat/pkg/config"
	"github.com/AliciaSchep/pgchat/pkg/db"
)

// SeedUserCount is the number of rows SetupTestSchema puts in test_users
const SeedUserCount = 42

// GetRealDatabaseConfig builds a config from PGCHAT_TEST_* variables, falling
// back to the libpq ones and then to local defaults
func GetRealDatabaseConfig() *config.DBConfig {
	return &config.DBConfig{
		Host:     envOr("localhost", "PGCHAT_TEST_HOST", "PGHOST"),
		Port:     parsePort(envOr("5432", "PGCHAT_TEST_PORT", "PGPORT")),
		Database: envOr("postgres", "PGCHAT_TEST_DATABASE", "PGDATABASE"),
		User:     envOr(os.Getenv("USER"), "PGCHAT_TEST_USER", "PGUSER"),
		Password: envOr("", "PGCHAT_TEST_PASSWORD", "PGPASSWORD"),
		SSLMode:  envOr("disable", "PGCHAT_TEST_SSLMODE", "PGSSLMODE"),
	}
}

// RequireDatabase returns a connection string for a reachable test database
// with the seed schema loaded, or skips the test
func RequireDatabase(t *testing.T) string {
	t.Helper()

	connString := GetRealDatabaseConfig().URI()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.Ping(ctx, db.PgxDialer{}, connString); err != nil {
		t.Skipf("Skipping real database tests - database not reachable: %v", err)
	}

	setup := func(c *db.Conn) error { return SetupTestSchema(ctx, c.Exec) }
	if err := WithConn(ctx, connString, setup); err != nil {
		t.Fatalf("Failed to setup test schema: %v", err)
	}
	t.Cleanup(func() {
		cleanup := func(c *db.Conn) error { return CleanupTestSchema(context.Background(), c.Exec) }
		if err := WithConn(context.Background(), connString, cleanup); err != nil {
			t.Logf("Warning: Failed to cleanup test schema: %v", err)
		}
	})
	return connString
}

// WithConn runs fn on a dedicated writable connection and closes it afterwards
func WithConn(ctx context.Context, connString string, fn func(*db.Conn) error) error {
	conn, err := db.Connect(ctx, connString)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	return fn(conn)
}

// SetupTestSchema creates the test tables through execFunc, which avoids
// coupling the fixture to a particular session type
func SetupTestSchema(ctx context.Context, execFunc func(context.Context, string, ...interface{}) error) error {
	schema := `
	DROP TABLE IF EXISTS test_order_items CASCADE;
	DROP TABLE IF EXISTS test_orders CASCADE;
	DROP TABLE IF EXISTS test_products CASCADE;
	DROP TABLE IF EXISTS test_users CASCADE;

	CREATE TABLE test_users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(100) UNIQUE NOT NULL,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE test_products (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		price DECIMAL(10,2) NOT NULL,
		category VARCHAR(50)
	);

	CREATE TABLE test_orders (
		id SERIAL PRIMARY KEY,
		user_id INTEGER REFERENCES test_users(id),
		total_amount DECIMAL(10,2) NOT NULL,
		status VARCHAR(20) DEFAULT 'pending'
	);

	CREATE INDEX test_orders_user_id_idx ON test_orders (user_id);

	CREATE TABLE test_order_items (
		id SERIAL PRIMARY KEY,
		order_id INTEGER REFERENCES test_orders(id),
		product_id INTEGER REFERENCES test_products(id),
		quantity INTEGER NOT NULL
	);

	INSERT INTO test_users (username, email)
	SELECT 'user' || g, 'user' || g || '@example.com'
	FROM generate_series(1, ` + strconv.Itoa(SeedUserCount) + `) AS g;

	INSERT INTO test_products (name, price, category) VALUES
		('Laptop', 999.99, 'Electronics'),
		('Mouse', 29.99, 'Electronics'),
		('Book', 19.99, 'Books');

	INSERT INTO test_orders (user_id, total_amount, status) VALUES
		(1, 1029.98, 'completed'),
		(2, 19.99, 'pending');

	INSERT INTO test_order_items (order_id, product_id, quantity) VALUES
		(1, 1, 1),
		(1, 2, 1),
		(2, 3, 1);

	ANALYZE test_users, test_products, test_orders, test_order_items;
	`

	return execFunc(ctx, schema)
}

// CleanupTestSchema removes the test tables
func CleanupTestSchema(ctx context.Context, execFunc func(context.Context, string, ...interface{}) error) error {
	cleanup := `
	DROP TABLE IF EXISTS test_order_items CASCADE;
	DROP TABLE IF EXISTS test_orders CASCADE;
	DROP TABLE IF EXISTS test_products CASCADE;
	DROP TABLE IF EXISTS test_users CASCADE;
	`
	return execFunc(ctx, cleanup)
}

func envOr(defaultValue string, keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return defaultValue
}

func parsePort(portStr string) int {
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil || port <= 0 || port > 65535 {
		return 5432
	}
	return port
}
