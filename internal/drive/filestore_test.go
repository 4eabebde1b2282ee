package drive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "credentials")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Credential{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    "Bearer",
		Expiry:       time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC),
		Scope:        Scope,
	}
	require.NoError(t, store.Save(ctx, 7, want))

	got, ok, err := store.Load(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.True(t, want.Expiry.Equal(got.Expiry))
	assert.Equal(t, want.Scope, got.Scope)

	info, err := os.Stat(filepath.Join(dir, "user-7.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, store.Delete(ctx, 7))
	require.NoError(t, store.Delete(ctx, 7))
	_, ok, err = store.Load(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialValid(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, Credential{}.Valid(now))
	assert.True(t, Credential{AccessToken: "a"}.Valid(now))
	assert.True(t, Credential{AccessToken: "a", Expiry: now.Add(time.Minute)}.Valid(now))
	assert.False(t, Credential{AccessToken: "a", Expiry: now.Add(5 * time.Second)}.Valid(now))
	assert.False(t, Credential{AccessToken: "a", Expiry: now.Add(-time.Second)}.Valid(now))
}
