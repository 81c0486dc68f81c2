package mysql

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationLogger matches the golang-migrate logging contract so callers can
// plug in their structured logger.
type MigrationLogger interface {
	Printf(format string, v ...any)
	Verbose() bool
}

// Migrate applies all pending schema migrations against the connected database.
func Migrate(db *sqlx.DB, logger MigrationLogger) error {
	if db == nil {
		return errors.New("mysql: migrate: db handle is required")
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, "mysql: migrate: load sources")
	}

	target, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	if err != nil {
		return errors.Wrap(err, "mysql: migrate: init driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "mysql", target)
	if err != nil {
		return errors.Wrap(err, "mysql: migrate: init migrator")
	}
	if logger != nil {
		m.Log = logger
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "mysql: migrate: apply")
	}
	return nil
}
