package repository

import (
	"context"
	"os"
	"testing"

	"github.com/ayo6706/currency-converter/internal/db"
	"github.com/ayo6706/currency-converter/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

func TestPostgresKV(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	release := dblock.Acquire()
	defer release()

	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"))
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, db.Migrate(ctx, pool))

	kv := NewPostgresKV(pool)
	key := "test_" + uuid.NewString()[:8]

	_, err = kv.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, key, []byte(`[{"id":"a"}]`)))
	require.NoError(t, kv.Set(ctx, key, []byte(`[{"id":"b"}]`)))

	got, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"b"}]`, string(got))
}
