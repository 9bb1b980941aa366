package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/fjord-labs/walletcore/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	UpDownSeparator = "-- +migrate Up"

	migrationDirections = 2
)

type Migration struct {
	ID  string
	SQL string
}

// RunMigrations executes pending migrations to keep the derived tables this
// core owns up to date. Each migration embeds both Up and Down sections
// separated by the sql-migrate markers.
func RunMigrations(log *logger.Logger, conn *sql.DB, driver string, migrationsParam []Migration) error {
	migs := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}

	for _, m := range migrationsParam {
		splitted := strings.Split(m.SQL, UpDownSeparator)

		if len(splitted) < migrationDirections {
			return fmt.Errorf("migration %s missing '-- +migrate Up' separator", m.ID)
		}

		// splitted[0] = Down section (may include "-- +migrate Down" marker)
		// splitted[1] = Up section
		downSQL := splitted[0]
		upSQL := strings.TrimSpace(splitted[1])

		downMarker := "-- +migrate Down"
		if idx := strings.Index(downSQL, downMarker); idx != -1 {
			downSQL = strings.TrimSpace(downSQL[idx+len(downMarker):])
		} else {
			downSQL = strings.TrimSpace(downSQL)
		}

		migs.Migrations = append(migs.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{upSQL},
			Down: []string{downSQL},
		})
	}

	var listMigrations strings.Builder
	for _, m := range migs.Migrations {
		listMigrations.WriteString(m.Id + ", ")
	}

	log.Debugf("running %d migrations: %s", len(migs.Migrations), listMigrations.String())

	nMigrations, err := migrate.Exec(conn, driver, migs, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing migrations %s: %w", listMigrations.String(), err)
	}

	log.Infof("successfully ran %d migrations", nMigrations)
	return nil
}
