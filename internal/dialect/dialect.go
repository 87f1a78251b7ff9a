// Package dialect holds the per-DBMS operations the engine consumes: server
// classification, schema lifecycle, changelog DDL and transaction handles.
package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	MySQL
	PostgreSQL
	SQLite
)

func (k Kind) String() string {
	switch k {
	case MySQL:
		return "MySQL"
	case PostgreSQL:
		return "PostgreSQL"
	case SQLite:
		return "SQLite"
	default:
		return "Unknown"
	}
}

var ErrUnknownDBMS = errors.New("unable to classify database server")

// Execer is the subset of database/sql shared by *sql.DB and *sql.Tx. Schema
// mutations and ledger writes take one so the engine decides the transaction
// envelope.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Helper exposes one DBMS to the engine.
type Helper interface {
	Kind() Kind
	DB() *sql.DB

	CurrentSchema(ctx context.Context) (string, error)
	SchemaExists(ctx context.Context, name string) (bool, error)
	SchemaEmpty(ctx context.Context, name string) (bool, error)
	CreateSchema(ctx context.Context, e Execer, name string) error
	DropSchema(ctx context.Context, e Execer, name string) error
	EraseSchema(ctx context.Context, e Execer, name string) error

	TableExists(ctx context.Context, schema, table string) (bool, error)
	ChangelogTableSQL(schema, table string) string
	QualifiedTable(schema, table string) string

	// Rebind rewrites '?' parameter markers into the dialect's style.
	Rebind(query string) string
	// ReturningClause is appended to ledger inserts on dialects where the
	// driver cannot report LastInsertId.
	ReturningClause() string

	Begin(ctx context.Context) (*sql.Tx, error)
}

// Classify probes the server to decide which helper fits the connection.
// MySQL and PostgreSQL both answer version(); SQLite only sqlite_version().
func Classify(ctx context.Context, db *sql.DB) (Kind, error) {
	var ver string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&ver); err == nil {
		if strings.Contains(ver, "PostgreSQL") {
			return PostgreSQL, nil
		}
		return MySQL, nil
	}
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&ver); err == nil {
		return SQLite, nil
	}
	return Unknown, ErrUnknownDBMS
}

// New returns the helper for a classified connection.
func New(kind Kind, db *sql.DB) (Helper, error) {
	switch kind {
	case MySQL:
		return &mysqlHelper{db: db}, nil
	case PostgreSQL:
		return &postgresHelper{db: db}, nil
	case SQLite:
		return &sqliteHelper{db: db}, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownDBMS, kind)
	}
}

// rebindDollar rewrites '?' markers to $1..$n, skipping quoted runs.
func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	inSingle, inDouble := false, false
	for _, r := range query {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case r == '?' && !inSingle && !inDouble:
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
