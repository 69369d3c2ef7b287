package storage

import (
	"embed"

	"github.com/GuiaBolso/darwin"
	"github.com/diegoclair/sqlmigrator"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var sqlFiles embed.FS

// migrate applies the embedded scripts for the store's dialect in file order.
// Applied versions are tracked by darwin, so reruns are no-ops.
func (s *Store) migrate() error {
	if s.dialect == DialectPostgres {
		return sqlmigrator.New(s.db, darwin.PostgresDialect{}).Migrate(sqlFiles, "sql/postgres")
	}
	return sqlmigrator.New(s.db, darwin.SqliteDialect{}).Migrate(sqlFiles, "sql/sqlite")
}
