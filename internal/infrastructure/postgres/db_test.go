package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolWithConfigInvalidURL(t *testing.T) {
	_, err := NewPoolWithConfig(context.Background(), PoolConfig{DatabaseURL: "not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse database URL")
}

func TestNewPoolWithConfigPingFailure(t *testing.T) {
	cfg := PoolConfig{
		DatabaseURL:    "postgres://ledger@127.0.0.1:1/db?sslmode=disable",
		MaxConns:       1,
		ConnectTimeout: 200 * time.Millisecond,
	}

	_, err := NewPoolWithConfig(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestRunMigrationsRequiresPath(t *testing.T) {
	err := RunMigrations("postgres://localhost/db", "", zerolog.Nop())
	assert.EqualError(t, err, "migrations path is required")
}

func TestRunMigrationsIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, RunMigrations(url, "../../../migrations", zerolog.Nop()))
	// A second run is a no-op.
	require.NoError(t, RunMigrations(url, "../../../migrations", zerolog.Nop()))

	pool, err := NewPool(context.Background(), url, 2, 1)
	require.NoError(t, err)
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(context.Background(),
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'documents')").Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}
