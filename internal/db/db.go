package db

import (
	"database/sql"
	"fmt"

	"github.com/fjord-labs/walletcore/internal/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"
)

// New opens a database connection for the configured driver.
// Production deployments point at the postgres instance the upstream ETL
// writes to; tests and single-node deployments use sqlite.
func New(cfg config.StoreConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if cfg.Driver == "sqlite3" {
		dsn = fmt.Sprintf(
			"file:%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=30000",
			cfg.DSN,
		)
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConnections)
	conn.SetMaxIdleConns(cfg.MaxIdleConnections)

	return conn, nil
}

// NewSQLiteDB creates a new SQLite DB. Used by tests and the migrate command.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", fmt.Sprintf(
		"file:%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=30000",
		dbPath,
	))
}

// SetMeddlerDriver configures meddler's placeholder dialect for the driver.
func SetMeddlerDriver(driver string) {
	switch driver {
	case "postgres":
		meddler.Default = meddler.PostgreSQL
	default:
		meddler.Default = meddler.SQLite
	}
}

// Rebind converts '?' placeholders to the driver's dialect. Queries in this
// codebase are written with '?' and rebound at the call site for postgres.
func Rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
