// Package metadata is the typed ledger the engine keeps inside the target
// database: one row per applied migration plus schema-lifecycle markers.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mirajehossain/evolvex/internal/dialect"
	"github.com/mirajehossain/evolvex/internal/version"
)

type EntryType int

const (
	TypeMigration    EntryType = 10
	TypeNewSchema    EntryType = 20
	TypeEmptySchema  EntryType = 30
	TypeStartVersion EntryType = 40
)

type Entry struct {
	ID          int64
	Type        EntryType
	Version     *version.Version // nil for schema markers
	Description string
	Name        string
	Checksum    string // empty for non-migration entries
	InstalledOn time.Time
	InstalledBy string
	Success     bool
}

// Store binds the ledger to one (schema, table) pair through a dialect
// helper. Save takes an Execer so the engine chooses whether an appended entry
// joins a transaction; every other operation, including Ensure and
// UpdateChecksum, runs directly on the connection.
type Store struct {
	helper      dialect.Helper
	Schema      string
	Table       string
	InstalledBy string

	ensured bool
}

func NewStore(h dialect.Helper, schema, table, installedBy string) *Store {
	return &Store{helper: h, Schema: schema, Table: table, InstalledBy: installedBy}
}

func (s *Store) qualified() string {
	return s.helper.QualifiedTable(s.Schema, s.Table)
}

func (s *Store) Exists(ctx context.Context) (bool, error) {
	return s.helper.TableExists(ctx, s.Schema, s.Table)
}

// Ensure creates the ledger table if it does not exist yet. Idempotent.
func (s *Store) Ensure(ctx context.Context) error {
	if s.ensured {
		return nil
	}
	if _, err := s.helper.DB().ExecContext(ctx, s.helper.ChangelogTableSQL(s.Schema, s.Table)); err != nil {
		return fmt.Errorf("create metadata table %s: %w", s.qualified(), err)
	}
	s.ensured = true
	return nil
}

// Invalidate forgets the cached Ensure result, used after the ledger's host
// schema has been erased or dropped.
func (s *Store) Invalidate() {
	s.ensured = false
}

// Save appends one entry and returns its assigned id.
func (s *Store) Save(ctx context.Context, e dialect.Execer, entry Entry) (int64, error) {
	var ver any
	if entry.Version != nil {
		ver = entry.Version.String()
	}
	var sum any
	if entry.Checksum != "" {
		sum = entry.Checksum
	}
	installedOn := entry.InstalledOn
	if installedOn.IsZero() {
		installedOn = time.Now().UTC()
	}
	installedBy := entry.InstalledBy
	if installedBy == "" {
		installedBy = s.InstalledBy
	}
	q := s.helper.Rebind(fmt.Sprintf(
		"INSERT INTO %s (type, version, description, name, checksum, installed_on, installed_by, success) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		s.qualified()))
	args := []any{int(entry.Type), ver, entry.Description, entry.Name, sum, installedOn, installedBy, entry.Success}

	if clause := s.helper.ReturningClause(); clause != "" {
		var id int64
		if err := e.QueryRowContext(ctx, q+clause, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("save metadata entry: %w", err)
		}
		return id, nil
	}
	res, err := e.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("save metadata entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save metadata entry: %w", err)
	}
	return id, nil
}

// ListApplied returns successful migration entries in insertion order.
func (s *Store) ListApplied(ctx context.Context) ([]Entry, error) {
	q := s.helper.Rebind(fmt.Sprintf(
		"SELECT id, type, version, description, name, checksum, installed_on, installed_by, success FROM %s WHERE type = ? AND success = ? ORDER BY id",
		s.qualified()))
	rows, err := s.helper.DB().QueryContext(ctx, q, int(TypeMigration), true)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		entry    Entry
		typ      int
		ver, sum sql.NullString
	)
	if err := rows.Scan(&entry.ID, &typ, &ver, &entry.Description, &entry.Name, &sum,
		&entry.InstalledOn, &entry.InstalledBy, &entry.Success); err != nil {
		return Entry{}, fmt.Errorf("scan metadata entry: %w", err)
	}
	entry.Type = EntryType(typ)
	if ver.Valid {
		v, err := version.Parse(ver.String)
		if err != nil {
			return Entry{}, fmt.Errorf("metadata row %d: %w", entry.ID, err)
		}
		entry.Version = &v
	}
	if sum.Valid {
		entry.Checksum = sum.String
	}
	return entry, nil
}

// FindStartVersion returns the version of the most recent StartVersion entry,
// or the zero sentinel when no baseline has been declared.
func (s *Store) FindStartVersion(ctx context.Context) (version.Version, error) {
	q := s.helper.Rebind(fmt.Sprintf(
		"SELECT version FROM %s WHERE type = ? ORDER BY id DESC LIMIT 1", s.qualified()))
	var raw sql.NullString
	err := s.helper.DB().QueryRowContext(ctx, q, int(TypeStartVersion)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return version.Zero, nil
	}
	if err != nil {
		return version.Zero, fmt.Errorf("find start version: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return version.Zero, nil
	}
	v, err := version.Parse(raw.String)
	if err != nil {
		return version.Zero, fmt.Errorf("start version entry: %w", err)
	}
	return v, nil
}

// UpdateChecksum rewrites the checksum of one ledger row. Repair only.
func (s *Store) UpdateChecksum(ctx context.Context, id int64, sum string) error {
	q := s.helper.Rebind(fmt.Sprintf("UPDATE %s SET checksum = ? WHERE id = ?", s.qualified()))
	if _, err := s.helper.DB().ExecContext(ctx, q, sum, id); err != nil {
		return fmt.Errorf("update checksum for entry %d: %w", id, err)
	}
	return nil
}

// CanDropSchema reports whether the engine created the schema itself, which
// is its mandate to destroy it.
func (s *Store) CanDropSchema(ctx context.Context, name string) (bool, error) {
	return s.hasMarker(ctx, TypeNewSchema, name)
}

// CanEraseSchema reports whether the engine observed the schema empty, which
// is its mandate to empty it again.
func (s *Store) CanEraseSchema(ctx context.Context, name string) (bool, error) {
	return s.hasMarker(ctx, TypeEmptySchema, name)
}

func (s *Store) hasMarker(ctx context.Context, typ EntryType, name string) (bool, error) {
	q := s.helper.Rebind(fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE type = ? AND name = ?", s.qualified()))
	var n int
	if err := s.helper.DB().QueryRowContext(ctx, q, int(typ), name).Scan(&n); err != nil {
		return false, fmt.Errorf("read schema marker: %w", err)
	}
	return n > 0, nil
}
