package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type postgresHelper struct {
	db *sql.DB
}

func (h *postgresHelper) Kind() Kind  { return PostgreSQL }
func (h *postgresHelper) DB() *sql.DB { return h.db }

func (h *postgresHelper) CurrentSchema(ctx context.Context) (string, error) {
	var name sql.NullString
	if err := h.db.QueryRowContext(ctx, "SELECT current_schema()").Scan(&name); err != nil {
		return "", fmt.Errorf("resolve current schema: %w", err)
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("connection has no schema on its search path")
	}
	return name.String, nil
}

func (h *postgresHelper) SchemaExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = $1", name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (h *postgresHelper) SchemaEmpty(ctx context.Context, name string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx, `
SELECT (SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1)
     + (SELECT COUNT(*) FROM information_schema.sequences WHERE sequence_schema = $1)
     + (SELECT COUNT(*) FROM information_schema.routines WHERE routine_schema = $1)`,
		name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (h *postgresHelper) CreateSchema(ctx context.Context, e Execer, name string) error {
	_, err := e.ExecContext(ctx, "CREATE SCHEMA "+h.quote(name))
	return err
}

func (h *postgresHelper) DropSchema(ctx context.Context, e Execer, name string) error {
	_, err := e.ExecContext(ctx, "DROP SCHEMA "+h.quote(name)+" CASCADE")
	return err
}

// EraseSchema drops tables, views and sequences inside the schema. CASCADE on
// the table drops takes dependent constraints and indexes with them.
func (h *postgresHelper) EraseSchema(ctx context.Context, e Execer, name string) error {
	type object struct{ kind, name string }
	var objects []object
	rows, err := e.QueryContext(ctx, `
SELECT 'VIEW', table_name FROM information_schema.views WHERE table_schema = $1
UNION ALL
SELECT 'TABLE', table_name FROM information_schema.tables
 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
UNION ALL
SELECT 'SEQUENCE', sequence_name FROM information_schema.sequences WHERE sequence_schema = $1`,
		name)
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
		stmt := fmt.Sprintf("DROP %s IF EXISTS %s.%s CASCADE", o.kind, h.quote(name), h.quote(o.name))
		if _, err := e.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (h *postgresHelper) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2",
		schema, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (h *postgresHelper) ChangelogTableSQL(schema, table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id BIGSERIAL PRIMARY KEY,
  type SMALLINT NOT NULL,
  version VARCHAR(50) NULL,
  description VARCHAR(200) NOT NULL,
  name VARCHAR(300) NOT NULL,
  checksum VARCHAR(64) NULL,
  installed_on TIMESTAMPTZ NOT NULL DEFAULT now(),
  installed_by VARCHAR(100) NOT NULL,
  success BOOLEAN NOT NULL
);
`, h.QualifiedTable(schema, table))
}

func (h *postgresHelper) QualifiedTable(schema, table string) string {
	return h.quote(schema) + "." + h.quote(table)
}

func (h *postgresHelper) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (h *postgresHelper) Rebind(query string) string { return rebindDollar(query) }
func (h *postgresHelper) ReturningClause() string    { return " RETURNING id" }

func (h *postgresHelper) Begin(ctx context.Context) (*sql.Tx, error) {
	return h.db.BeginTx(ctx, nil)
}
