package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Requires a reachable PostgreSQL in CATALOG_TEST_DSN.
func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv("CATALOG_TEST_DSN")
	if dsn == "" {
		t.Skip("CATALOG_TEST_DSN not set")
	}

	table := "images_test_" + uuid.NewString()[:8]
	require.NoError(t, Migrate(dsn, table, zap.NewNop()))

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, Config{DSN: dsn, Table: table, OpTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", s.table, pgx.Identifier{table + "_schema_migrations"}.Sanitize()))
		_ = s.Close()
	})
	return s
}

func TestPostgresStore_CreateIsIdempotent(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "sunset.JPG")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Create(ctx, "sunset.JPG")
	require.NoError(t, err)
	assert.False(t, created)

	var count int
	require.NoError(t, s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE id = $1", s.table), "sunset.JPG").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPostgresStore_SetAttributeMergesFields(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "sunset.JPG")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for attr, value := range map[string]string{"Caption": "Dusk", "Date": "2024-05-01", "Photographer": "Ann"} {
		wg.Add(1)
		go func(attr, value string) {
			defer wg.Done()
			assert.NoError(t, s.SetAttribute(ctx, "sunset.JPG", attr, value))
		}(attr, value)
	}
	wg.Wait()

	rec, err := s.Get(ctx, "sunset.JPG")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Caption": "Dusk", "Date": "2024-05-01", "Photographer": "Ann"}, rec.Metadata)

	assert.ErrorIs(t, s.SetAttribute(ctx, "missing.jpg", "Date", "x"), ErrNotFound)
	_, err = s.Get(ctx, "missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}
