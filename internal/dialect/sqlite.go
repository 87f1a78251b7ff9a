package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLite has no CREATE SCHEMA: everything lives in the implicit main schema.
// Schema creation and dropping are reported as unsupported; erasing drops
// every object recorded in sqlite_master.
type sqliteHelper struct {
	db *sql.DB
}

const sqliteMainSchema = "main"

func (h *sqliteHelper) Kind() Kind  { return SQLite }
func (h *sqliteHelper) DB() *sql.DB { return h.db }

func (h *sqliteHelper) CurrentSchema(ctx context.Context) (string, error) {
	return sqliteMainSchema, nil
}

func (h *sqliteHelper) SchemaExists(ctx context.Context, name string) (bool, error) {
	return strings.EqualFold(name, sqliteMainSchema), nil
}

func (h *sqliteHelper) SchemaEmpty(ctx context.Context, name string) (bool, error) {
	if !strings.EqualFold(name, sqliteMainSchema) {
		return false, fmt.Errorf("sqlite has no schema %q", name)
	}
	var n int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE name NOT LIKE 'sqlite_%'").Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (h *sqliteHelper) CreateSchema(ctx context.Context, e Execer, name string) error {
	return fmt.Errorf("sqlite does not support creating schemas")
}

func (h *sqliteHelper) DropSchema(ctx context.Context, e Execer, name string) error {
	return fmt.Errorf("sqlite does not support dropping schemas")
}

func (h *sqliteHelper) EraseSchema(ctx context.Context, e Execer, name string) error {
	if !strings.EqualFold(name, sqliteMainSchema) {
		return fmt.Errorf("sqlite has no schema %q", name)
	}
	type object struct{ kind, name string }
	var objects []object
	// Triggers and views first so table drops do not trip dependencies.
	rows, err := e.QueryContext(ctx, `
SELECT type, name FROM sqlite_master
 WHERE name NOT LIKE 'sqlite_%'
 ORDER BY CASE type WHEN 'trigger' THEN 0 WHEN 'view' THEN 1 WHEN 'index' THEN 2 ELSE 3 END`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var o object
		if err := rows.Scan(&o.kind, &o.name); err != nil {
			rows.Close()
			return err
		}
		objects = append(objects, o)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, o := range objects {
		var stmt string
		switch o.kind {
		case "table":
			stmt = "DROP TABLE IF EXISTS " + h.quote(o.name)
		case "view":
			stmt = "DROP VIEW IF EXISTS " + h.quote(o.name)
		case "trigger":
			stmt = "DROP TRIGGER IF EXISTS " + h.quote(o.name)
		case "index":
			stmt = "DROP INDEX IF EXISTS " + h.quote(o.name)
		default:
			continue
		}
		if _, err := e.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (h *sqliteHelper) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (h *sqliteHelper) ChangelogTableSQL(schema, table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  type INTEGER NOT NULL,
  version TEXT NULL,
  description TEXT NOT NULL,
  name TEXT NOT NULL,
  checksum TEXT NULL,
  installed_on TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  installed_by TEXT NOT NULL,
  success BOOLEAN NOT NULL
);
`, h.QualifiedTable(schema, table))
}

func (h *sqliteHelper) QualifiedTable(schema, table string) string {
	// The main schema is implicit; qualifying it would break ATTACH-free use.
	return h.quote(table)
}

func (h *sqliteHelper) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (h *sqliteHelper) Rebind(query string) string { return query }
func (h *sqliteHelper) ReturningClause() string    { return "" }

func (h *sqliteHelper) Begin(ctx context.Context) (*sql.Tx, error) {
	return h.db.BeginTx(ctx, nil)
}
