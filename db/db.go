package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-notifier/utils"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Number of attempts at connecting to the database on startup
const connectAttempts = 5

// Options for Connect
type Options struct {
	// Driver is one of DriverSQLite or DriverPostgres
	Driver string
	// Path of the SQLite database file
	Path string
	// Connection string for Postgres
	DSN string
}

// Connect opens the database and waits until it's reachable
func Connect(ctx context.Context, opts Options) (*sqlx.DB, error) {
	var (
		dsn string
		err error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		dsn, err = sqliteDSN(opts.Path)
		if err != nil {
			return nil, err
		}
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, errors.New("database connection string is empty")
		}
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	db, err := sqlx.Open(opts.Driver, dsn)
	if err != nil {
		return nil, err
	}

	// A Postgres server may still be starting
	log := logrus.WithField("component", "db")
	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewFibonacci(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingErr := db.PingContext(ctx)
		if pingErr != nil {
			log.Warnf("Could not connect to the database: %s", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	log.Infof("Connected to the %s database", opts.Driver)
	return db, nil
}

// Returns the connection string for a SQLite database, creating its folder if needed
func sqliteDSN(dbPath string) (string, error) {
	if dbPath == "" {
		return "", errors.New("database path is empty")
	}

	dbPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}
	err = utils.EnsureFolder(filepath.Dir(dbPath))
	if err != nil {
		return "", fmt.Errorf("could not create the folder for the database: %w", err)
	}

	// The busy timeout lets the bot and the passes write at the same time
	return "file:" + dbPath + "?_busy_timeout=5000&_journal_mode=WAL", nil
}
