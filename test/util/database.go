// Package util provides test utilities and helper functions for database testing.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agora-discourse/agora/pkg/database"
)

var (
	// Shared connection string for all tests in local dev
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// SetupTestDatabase creates a migrated, isolated database for one test and
// returns a pgx pool connected to it. Both CI and local dev use a per-test
// database for isolation.
//   - CI: connects to an external PostgreSQL service container
//   - Local: uses a shared pgvector testcontainer (started once per package)
func SetupTestDatabase(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	baseConnStr := getOrCreateSharedDatabase(t)
	dbName := GenerateDatabaseName(t)

	// Create the per-test database from the base connection.
	admin, err := pgxpool.New(ctx, baseConnStr)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)

	testConnStr := replaceDatabase(t, baseConnStr, dbName)

	// Apply the embedded migrations to the fresh database.
	require.NoError(t, database.MigrateDatabase(testConnStr, dbName))

	pool, err := pgxpool.New(ctx, testConnStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, err := admin.Exec(context.Background(),
			fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName))
		if err != nil {
			t.Logf("Warning: failed to drop database %s: %v", dbName, err)
		}
		admin.Close()
	})

	return pool
}

// getOrCreateSharedDatabase returns a connection string to the shared server.
// In CI, uses CI_DATABASE_URL. In local dev, starts a shared testcontainer once.
func getOrCreateSharedDatabase(t *testing.T) string {
	if ciDatabaseURL := os.Getenv("CI_DATABASE_URL"); ciDatabaseURL != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
		return ciDatabaseURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer for all tests")

		// pgvector image: ships the vector extension on top of the standard
		// contrib set (ltree, uuid-ossp).
		pgContainer, err := postgres.Run(ctx,
			"pgvector/pgvector:pg17",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}

		sharedConnStr = connStr
		t.Logf("Shared container ready: %s", sharedConnStr)
	})

	require.NoError(t, containerErr, "Failed to setup shared test container")
	return sharedConnStr
}

// GenerateDatabaseName creates a unique, PostgreSQL-safe database name for the
// test. Format: test_<sanitized_test_name>_<random_hex>
func GenerateDatabaseName(t *testing.T) string {
	testName := strings.ToLower(t.Name())
	testName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, testName)

	// PostgreSQL identifiers cap at 63 chars.
	if len(testName) > 40 {
		testName = testName[:40]
	}

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		t.Fatalf("failed to generate random bytes for database name: %v", err)
	}
	return fmt.Sprintf("test_%s_%s", testName, hex.EncodeToString(randomBytes))
}

// replaceDatabase swaps the database path segment of a postgres URL.
func replaceDatabase(t *testing.T, connStr, dbName string) string {
	u, err := url.Parse(connStr)
	require.NoError(t, err)
	u.Path = "/" + dbName
	return u.String()
}
