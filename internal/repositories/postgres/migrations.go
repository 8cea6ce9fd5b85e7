package postgres

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

const migrationTable = "foodmarket_migrations"

func init() {
	migrate.SetTable(migrationTable)
}

// Migrations is the versioned schema of the tables this client writes to.
func Migrations() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: sqlFiles,
		Root:       "sql",
	}
}

// Migrate applies (migrate.Up) or rolls back (migrate.Down) at most max
// migrations; zero means all of them.
func Migrate(db *sql.DB, direction migrate.MigrationDirection, max int) (int, error) {
	n, err := migrate.ExecMax(db, "postgres", Migrations(), direction, max)
	if err != nil {
		return n, fmt.Errorf("run migrations: %w", err)
	}
	return n, nil
}

// MigratePool applies every pending migration over a pgx pool.
func MigratePool(pool *pgxpool.Pool) (int, error) {
	return Migrate(stdlib.OpenDBFromPool(pool), migrate.Up, 0)
}
