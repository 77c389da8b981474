package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medassist/internal/logger"
	"medassist/pkg"
)

func openSQLite(t *testing.T) *Repository {
	t.Helper()
	conn, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "data", "chat_history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewRepository(conn, DriverSQLite, nil, logger.Nop())
}

func TestRepositoryTurnsInCallOrder(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)
	fixed := time.Unix(1700000000, 0)
	repo.now = func() time.Time { return fixed }

	require.NoError(t, repo.AppendTurn(ctx, "s1", pkg.RoleUser, "I have a headache"))
	require.NoError(t, repo.AppendTurn(ctx, "s1", pkg.RoleAssistant, `{"severity_level":"low"}`))
	require.NoError(t, repo.AppendTurn(ctx, "s2", pkg.RoleUser, "other session"))

	turns, err := repo.ListTurns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, pkg.RoleUser, turns[0].Role)
	assert.Equal(t, "I have a headache", turns[0].Content)
	assert.Equal(t, pkg.RoleAssistant, turns[1].Role)
	assert.True(t, turns[0].CreatedAt.Equal(fixed))

	none, err := repo.ListTurns(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepositorySummaryOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)

	got, err := repo.GetSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.SetSummary(ctx, "s1", "first"))
	require.NoError(t, repo.SetSummary(ctx, "s1", "second"))
	got, err = repo.GetSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestRepositoryCity(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)

	city, err := repo.GetCity(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, city)

	require.NoError(t, repo.SetCity(ctx, "s1", "Mumbai"))
	require.NoError(t, repo.SetCity(ctx, "s1", "Hyderabad"))
	city, err = repo.GetCity(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Hyderabad", city)
}

func TestMigrateIsIdempotent(t *testing.T) {
	repo := openSQLite(t)
	assert.NoError(t, Migrate(repo.DB, DriverSQLite))
}

func TestRebind(t *testing.T) {
	pg := &Repository{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	lite := &Repository{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestSQLiteDSNKeepsCallerQuery(t *testing.T) {
	assert.Equal(t, "data/chat.db?"+sqlitePragmas, sqliteDSN("data/chat.db"))
	assert.Equal(t, "data/chat.db?mode=rwc&"+sqlitePragmas, sqliteDSN("data/chat.db?mode=rwc"))
	assert.Equal(t, "data/chat.db?"+sqlitePragmas, sqliteDSN("data/chat.db?"))
}

func TestOpenSQLiteWithQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.db")
	conn, err := Open(context.Background(), DriverSQLite, path+"?_txlock=immediate")
	require.NoError(t, err)
	defer conn.Close()

	var mode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
	assert.FileExists(t, path)
}
