// Package migrations holds the schema for the few derived tables this core
// owns. The upstream event tables belong to the ETL and are never migrated
// from here.
package migrations

import (
	"database/sql"
	_ "embed"
	"strings"

	"github.com/fjord-labs/walletcore/internal/db"
	"github.com/fjord-labs/walletcore/internal/logger"
)

//go:embed 001_pending_swaps.sql
var mig0001 string

// Run executes pending derived-table migrations for the given driver.
func Run(log *logger.Logger, conn *sql.DB, driver string) error {
	migs := []db.Migration{
		{
			ID:  "001_pending_swaps.sql",
			SQL: forDriver(mig0001, driver),
		},
	}
	return db.RunMigrations(log, conn, driver, migs)
}

// forDriver adjusts the portable schema for driver-specific key types.
func forDriver(sqlText, driver string) string {
	if driver == "postgres" {
		return strings.Replace(sqlText, "INTEGER PRIMARY KEY", "BIGSERIAL PRIMARY KEY", 1)
	}
	return sqlText
}
