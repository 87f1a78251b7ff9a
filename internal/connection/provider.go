// Package connection produces the validated *sql.DB the engine runs on,
// either by wrapping a caller-supplied handle or by opening one itself.
package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	ErrNoConnection = errors.New("no connection configured")
	ErrValidation   = errors.New("connection validation failed")
)

type Provider struct {
	db     *sql.DB
	driver string
	dsn    string
	owned  bool
}

// WithDB wraps an open handle owned by the caller. Close is a no-op.
func WithDB(db *sql.DB) *Provider {
	return &Provider{db: db}
}

// Open defers sql.Open to the first Connect call. The provider owns the
// resulting handle and Close releases it.
func Open(driver, dsn string) *Provider {
	return &Provider{driver: driver, dsn: dsn, owned: true}
}

// Connect opens the handle if needed and validates it with a round trip.
// Repeat calls reuse the same handle.
func (p *Provider) Connect(ctx context.Context) (*sql.DB, error) {
	if p.db == nil {
		if p.driver == "" || p.dsn == "" {
			return nil, fmt.Errorf("%w: driver and dsn are required", ErrNoConnection)
		}
		dsn := p.dsn
		if p.driver == "mysql" {
			dsn = normalizeMySQLDSN(dsn)
		}
		db, err := sql.Open(p.driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s connection: %w", p.driver, err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		p.db = db
	}
	if err := p.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return p.db, nil
}

// Close releases the handle only when the provider opened it.
func (p *Provider) Close() error {
	if p.owned && p.db != nil {
		return p.db.Close()
	}
	return nil
}

// normalizeMySQLDSN adds parseTime=true for timestamp scanning and
// multiStatements=true so multi-statement script batches execute in one call.
// An option the DSN already sets, to any value, is left as it is.
func normalizeMySQLDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(lower, "parsetime=") {
		dsn += sep + "parseTime=true"
		sep = "&"
	}
	if !strings.Contains(lower, "multistatements=") {
		dsn += sep + "multiStatements=true"
	}
	return dsn
}
