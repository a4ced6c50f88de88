package repository

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// versionTable keeps engine migrations apart from other schemas sharing the database.
const versionTable = "kanso_engine_db_version"

func setupGoose() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(versionTable)
	return goose.SetDialect("postgres")
}

// Migrate brings the schema up to date using the embedded goose migrations.
func Migrate(db *sqlx.DB) error {
	defer goose.SetBaseFS(nil)
	if err := setupGoose(); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}

// SchemaVersion returns the currently applied migration version.
func SchemaVersion(db *sqlx.DB) (int64, error) {
	defer goose.SetBaseFS(nil)
	if err := setupGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db.DB)
}
