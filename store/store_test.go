package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpie78/nova/store"
)

func testStore(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, store.KeyChatID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, store.KeyChatID, "abc"))
	v, ok, err := s.Get(ctx, store.KeyChatID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	// same value twice, then a new one
	require.NoError(t, s.Set(ctx, store.KeyChatID, "abc"))
	require.NoError(t, s.Set(ctx, store.KeyChatID, "def"))
	v, _, err = s.Get(ctx, store.KeyChatID)
	require.NoError(t, err)
	assert.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, store.KeyChatID))
	require.NoError(t, s.Delete(ctx, store.KeyChatID))
	_, ok, err = s.Get(ctx, store.KeyChatID)
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := store.GetBool(ctx, s, store.KeyAgentEnabled, false)
	require.NoError(t, err)
	assert.False(t, b)
	require.NoError(t, store.SetBool(ctx, s, store.KeyAgentEnabled, true))
	b, err = store.GetBool(ctx, s, store.KeyAgentEnabled, false)
	require.NoError(t, err)
	assert.True(t, b)

	require.NoError(t, s.Set(ctx, store.KeyAgentEnabled, "not a bool"))
	b, err = store.GetBool(ctx, s, store.KeyAgentEnabled, true)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, store.NewMemoryStore())
}

func TestSQLStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "client.db")
	s, err := store.Open(context.Background(), store.DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()

	testStore(t, s)
}

func TestSQLStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "client.db")

	s, err := store.Open(ctx, store.DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, store.KeyClientID, "device-1"))
	require.NoError(t, s.Close())

	s, err = store.Open(ctx, store.DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, store.KeyClientID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "device-1", v)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := store.Open(context.Background(), "postgres", "x")
	assert.Error(t, err)
}
