package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"spesa/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Success(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "spesa.db")
	stdout, stderr, stdin := new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)

	args := []string{"-user", "testuser", "-email", "test@example.com", "-password", "secret-password", "-db", dbPath}
	require.NoError(t, run(args, stdin, stdout, stderr))
	assert.Contains(t, stdout.String(), "User testuser created successfully")

	repo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	defer repo.Close()

	u, err := repo.GetUserByUsername(context.Background(), "testuser")
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", u.Email)

	cats, err := repo.ListCategories(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, cats, 5, "default categories are seeded")
}

func TestRun_DuplicateUser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "spesa.db")
	stdout, stderr, stdin := new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)
	args := []string{"-user", "testuser", "-password", "secret-password", "-db", dbPath}

	require.NoError(t, run(args, stdin, stdout, stderr), "first run should succeed")

	err := run(args, stdin, stdout, stderr)
	require.Error(t, err, "expected error on duplicate user")
	assert.Contains(t, err.Error(), "already exists")
}

func TestRun_MissingUserFlag(t *testing.T) {
	stdout, stderr, stdin := new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)

	err := run([]string{"-password", "secret-password"}, stdin, stdout, stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required flags: user")
	assert.Contains(t, stdout.String(), "Usage:")
}

func TestRun_InteractivePassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "spesa.db")
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	stdin := bytes.NewBufferString("interactive-secret\n")

	err := run([]string{"-user", "interactive_user", "-db", dbPath}, stdin, stdout, stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Password: ")
	assert.Contains(t, stdout.String(), "User interactive_user created successfully")
}

func TestRun_EmptyPassword(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	stdin := bytes.NewBufferString("\n")

	err := run([]string{"-user", "empty_pass_user"}, stdin, stdout, stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestRun_ShortPasswordRejected(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "spesa.db")
	stdout, stderr, stdin := new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)

	err := run([]string{"-user", "shorty", "-password", "abc", "-db", dbPath}, stdin, stdout, stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestRun_EnvVarOverride(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("SQLITE_DB_PATH", dbPath)
	stdout, stderr, stdin := new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)

	err := run([]string{"-user", "envuser", "-password", "secret-password"}, stdin, stdout, stderr)
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestRun_InvalidDBPath(t *testing.T) {
	stdout, stderr, stdin := new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)

	err := run([]string{"-user", "failuser", "-password", "secret-password", "-db", t.TempDir()}, stdin, stdout, stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestRun_InvalidFlag(t *testing.T) {
	stdout, stderr, stdin := new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer)

	err := run([]string{"-invalid"}, stdin, stdout, stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag provided but not defined")
}
