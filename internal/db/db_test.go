package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/logger"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		driver   string
		query    string
		expected string
	}{
		{"sqlite3", "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"postgres", "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"postgres", "SELECT 1", "SELECT 1"},
		{"postgres", "?", "$1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Rebind(tt.driver, tt.query))
	}
}

func TestNewSQLite(t *testing.T) {
	cfg := config.StoreConfig{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}
	cfg.ApplyDefaults()

	conn, err := New(cfg)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Ping())

	var mode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestRunMigrations(t *testing.T) {
	conn, err := NewSQLiteDB(filepath.Join(t.TempDir(), "mig.db"))
	require.NoError(t, err)
	defer conn.Close()

	migs := []Migration{{
		ID: "001_test.sql",
		SQL: `-- +migrate Down
DROP TABLE things;

-- +migrate Up
CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT);`,
	}}

	require.NoError(t, RunMigrations(logger.NewNopLogger(), conn, "sqlite3", migs))

	_, err = conn.Exec(`INSERT INTO things (name) VALUES ('a')`)
	require.NoError(t, err)

	// reruns are no-ops
	require.NoError(t, RunMigrations(logger.NewNopLogger(), conn, "sqlite3", migs))
}

func TestRunMigrationsMissingSeparator(t *testing.T) {
	conn, err := NewSQLiteDB(filepath.Join(t.TempDir(), "bad.db"))
	require.NoError(t, err)
	defer conn.Close()

	err = RunMigrations(logger.NewNopLogger(), conn, "sqlite3", []Migration{
		{ID: "001_bad.sql", SQL: "CREATE TABLE x (id INTEGER);"},
	})
	assert.ErrorContains(t, err, "missing '-- +migrate Up' separator")
}
