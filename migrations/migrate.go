package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-notifier/db"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

// Migrate brings the database schema to the latest version
func Migrate(dbx *sqlx.DB) error {
	var (
		dir    string
		driver database.Driver
		err    error
	)
	switch dbx.DriverName() {
	case db.DriverSQLite:
		dir = "sqlite"
		driver, err = sqlite3.WithInstance(dbx.DB, &sqlite3.Config{})
	case db.DriverPostgres:
		dir = "postgres"
		driver, err = postgres.WithInstance(dbx.DB, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported database driver: %s", dbx.DriverName())
	}
	if err != nil {
		return fmt.Errorf("error creating %s instance for migration: %w", dbx.DriverName(), err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("error creating migrations source: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, dbx.DriverName(), driver)
	if err != nil {
		return fmt.Errorf("error creating migrator: %w", err)
	}
	err = migrator.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logrus.WithField("component", "migrations").Debug("Database schema is up to date")
		return nil
	} else if err != nil {
		return fmt.Errorf("error migrating the database to the latest schema: %w", err)
	}

	version, _, _ := migrator.Version()
	logrus.WithField("component", "migrations").Infof("Migrated the database to version %d", version)
	return nil
}
