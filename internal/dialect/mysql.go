package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// In MySQL a schema and a database are the same namespace, so schema
// lifecycle maps onto CREATE/DROP SCHEMA statements directly.
type mysqlHelper struct {
	db *sql.DB
}

func (h *mysqlHelper) Kind() Kind  { return MySQL }
func (h *mysqlHelper) DB() *sql.DB { return h.db }

func (h *mysqlHelper) CurrentSchema(ctx context.Context) (string, error) {
	var name sql.NullString
	if err := h.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&name); err != nil {
		return "", fmt.Errorf("resolve current schema: %w", err)
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("connection is not attached to a schema")
	}
	return name.String, nil
}

func (h *mysqlHelper) SchemaExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (h *mysqlHelper) SchemaEmpty(ctx context.Context, name string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx, `
SELECT (SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ?)
     + (SELECT COUNT(*) FROM information_schema.routines WHERE routine_schema = ?)`,
		name, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (h *mysqlHelper) CreateSchema(ctx context.Context, e Execer, name string) error {
	_, err := e.ExecContext(ctx, "CREATE SCHEMA "+h.quote(name))
	return err
}

func (h *mysqlHelper) DropSchema(ctx context.Context, e Execer, name string) error {
	_, err := e.ExecContext(ctx, "DROP SCHEMA "+h.quote(name))
	return err
}

// EraseSchema drops every table and view in the schema but keeps the schema
// itself. Foreign key checks are disabled for the duration so drop order
// does not matter.
func (h *mysqlHelper) EraseSchema(ctx context.Context, e Execer, name string) error {
	rows, err := e.QueryContext(ctx,
		"SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = ?", name)
	if err != nil {
		return err
	}
	var tables, views []string
	for rows.Next() {
		var tbl, typ string
		if err := rows.Scan(&tbl, &typ); err != nil {
			rows.Close()
			return err
		}
		if strings.EqualFold(typ, "VIEW") {
			views = append(views, tbl)
		} else {
			tables = append(tables, tbl)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if _, err := e.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return err
	}
	for _, v := range views {
		if _, err := e.ExecContext(ctx, "DROP VIEW "+h.quote(name)+"."+h.quote(v)); err != nil {
			return err
		}
	}
	for _, t := range tables {
		if _, err := e.ExecContext(ctx, "DROP TABLE "+h.quote(name)+"."+h.quote(t)); err != nil {
			return err
		}
	}
	_, err = e.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1")
	return err
}

func (h *mysqlHelper) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
		schema, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (h *mysqlHelper) ChangelogTableSQL(schema, table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id BIGINT PRIMARY KEY AUTO_INCREMENT,
  type INT NOT NULL,
  version VARCHAR(50) NULL,
  description VARCHAR(200) NOT NULL,
  name VARCHAR(300) NOT NULL,
  checksum VARCHAR(64) NULL,
  installed_on TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  installed_by VARCHAR(100) NOT NULL,
  success BOOLEAN NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`, h.QualifiedTable(schema, table))
}

func (h *mysqlHelper) QualifiedTable(schema, table string) string {
	return h.quote(schema) + "." + h.quote(table)
}

func (h *mysqlHelper) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (h *mysqlHelper) Rebind(query string) string { return query }
func (h *mysqlHelper) ReturningClause() string    { return "" }

func (h *mysqlHelper) Begin(ctx context.Context) (*sql.Tx, error) {
	return h.db.BeginTx(ctx, nil)
}
