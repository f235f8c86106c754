package database

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// addedColumns were introduced after their table; databases created earlier
// get them through ALTER TABLE.
var addedColumns = []struct {
	table, column, definition string
}{
	{"migration_runs", "operator", "TEXT NOT NULL DEFAULT ''"},
	{"migration_ledger", "inconsistent", "INTEGER NOT NULL DEFAULT 0"},
}

// Migrate applies the schema. Every statement is IF NOT EXISTS and columns
// are only added when missing, so it is safe to call on each start.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, c := range addedColumns {
		var n int
		if err := db.QueryRow(
			`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.column,
		).Scan(&n); err != nil {
			return fmt.Errorf("inspect %s: %w", c.table, err)
		}
		if n > 0 {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, c.table, c.column, c.definition)); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}
