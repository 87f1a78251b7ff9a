package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotAcquired = errors.New("failed to acquire advisory lock")

// Advisory is a MySQL GET_LOCK/RELEASE_LOCK guard held on a dedicated
// connection. The CLI takes one around database commands so two operators
// cannot run against the same changelog at once; the engine itself stays
// lock-free and relies on the database's own locking.
type Advisory struct {
	conn *sql.Conn
	key  string
	held bool
}

func New(key string) *Advisory {
	return &Advisory{key: key}
}

func (a *Advisory) Acquire(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if a.held {
		return nil
	}
	var err error
	a.conn, err = db.Conn(ctx)
	if err != nil {
		return err
	}
	row := a.conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.key, int(timeout.Seconds()))
	var got sql.NullInt64
	if err := row.Scan(&got); err != nil {
		_ = a.conn.Close()
		return err
	}
	if !got.Valid || got.Int64 != 1 {
		_ = a.conn.Close()
		return fmt.Errorf("%w: %s", ErrNotAcquired, a.key)
	}
	a.held = true
	return nil
}

func (a *Advisory) Release(ctx context.Context) error {
	if !a.held || a.conn == nil {
		return nil
	}
	row := a.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.key)
	var rel sql.NullInt64
	_ = row.Scan(&rel) // do not fail on release
	a.held = false
	return a.conn.Close()
}

func (a *Advisory) Key() string { return a.key }

func KeyFor(schema, table string) string {
	return fmt.Sprintf("evolvex:%s:%s", schema, table)
}
