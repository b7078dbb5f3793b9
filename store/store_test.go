package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/p4p-engine/config"
	"github.com/fieldcrew/p4p-engine/store"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	mem, err := store.Open(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	db, err := store.Open(ctx, config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "p4p.db")})
	require.NoError(t, err)
	employees, err := db.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, employees)
	require.NoError(t, db.Close())

	_, err = store.Open(ctx, config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
