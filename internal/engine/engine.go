// Package engine orchestrates the four schema-evolution commands: Migrate,
// Validate, Repair and Erase. It owns ordering and transactional discipline;
// everything DBMS-specific is consumed through the dialect helper.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os/user"
	"strings"

	"github.com/mirajehossain/evolvex/internal/config"
	"github.com/mirajehossain/evolvex/internal/connection"
	"github.com/mirajehossain/evolvex/internal/dialect"
	"github.com/mirajehossain/evolvex/internal/loader"
	"github.com/mirajehossain/evolvex/internal/logger"
	"github.com/mirajehossain/evolvex/internal/metadata"
	"github.com/mirajehossain/evolvex/internal/placeholder"
	"github.com/mirajehossain/evolvex/internal/version"
)

var (
	ErrChecksumMismatch  = errors.New("incorrect migration checksum")
	ErrMetadataNotFound  = errors.New("migration metadata not found")
	ErrMigrationFailed   = errors.New("migration failed")
	ErrDropSchemaFailed  = errors.New("drop schema failed")
	ErrEraseSchemaFailed = errors.New("erase schema failed")
)

// IsValidationError reports whether err is one of the history-divergence
// failures that Migrate may intercept with an erase-and-retry.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrMetadataNotFound)
}

// Mode selects how validate treats a checksum mismatch: fail the command, or
// rewrite the ledger checksum in place.
type Mode int

const (
	ModeStrict Mode = iota
	ModeRepair
)

// Engine runs commands against one database. The configuration is copied at
// construction and never mutated afterwards; per-command state is reset by
// initialize.
type Engine struct {
	cfg      config.Config
	log      *logger.Logger
	provider *connection.Provider
	replacer *placeholder.Replacer
	target   version.Version

	// FS, when set before any command runs, makes the loader read the
	// configured locations from an embedded filesystem instead of disk.
	FS fs.FS

	db         *sql.DB
	helper     dialect.Helper
	store      *metadata.Store
	schemas    []string
	metaSchema string

	nbMigration int
	nbRepair    int
}

func New(cfg config.Config, log *logger.Logger, provider *connection.Provider) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target := version.Max
	if cfg.TargetVersion != "" {
		v, err := version.Parse(cfg.TargetVersion)
		if err != nil {
			return nil, fmt.Errorf("%w: target_version: %v", config.ErrInvalid, err)
		}
		target = v
	}
	return &Engine{
		cfg:      cfg,
		log:      log,
		provider: provider,
		replacer: placeholder.New(cfg.PlaceholderPrefix, cfg.PlaceholderSuffix, cfg.Placeholders),
		target:   target,
	}, nil
}

// NbMigration reports how many scripts the last command applied.
func (e *Engine) NbMigration() int { return e.nbMigration }

// NbRepair reports how many checksums the last command rewrote.
func (e *Engine) NbRepair() int { return e.nbRepair }

// initialize is the shared precondition of every command: counters reset,
// validated connection, classified DBMS, resolved schema list and metadata
// location.
func (e *Engine) initialize(ctx context.Context) error {
	e.nbMigration = 0
	e.nbRepair = 0

	db, err := e.provider.Connect(ctx)
	if err != nil {
		return err
	}
	e.db = db

	kind, err := dialect.Classify(ctx, db)
	if err != nil {
		return err
	}
	helper, err := dialect.New(kind, db)
	if err != nil {
		return err
	}
	e.helper = helper

	schemas := make([]string, 0, len(e.cfg.Schemas))
	for _, s := range e.cfg.Schemas {
		if s = strings.TrimSpace(s); s != "" {
			schemas = append(schemas, s)
		}
	}
	if len(schemas) == 0 {
		current, err := helper.CurrentSchema(ctx)
		if err != nil {
			return err
		}
		schemas = []string{current}
	}
	e.schemas = schemas

	e.metaSchema = e.cfg.MetadataTableSchema
	if e.metaSchema == "" {
		e.metaSchema = schemas[0]
	}
	e.store = metadata.NewStore(helper, e.metaSchema, e.cfg.MetadataTableName, e.installedBy())

	e.log.Info("connected", map[string]any{
		"dbms":    kind.String(),
		"schemas": strings.Join(e.schemas, ","),
	})
	return nil
}

func (e *Engine) installedBy() string {
	if e.cfg.InstalledBy != "" {
		return e.cfg.InstalledBy
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func (e *Engine) loadScripts() ([]*loader.Script, error) {
	l := &loader.Loader{
		Locations: e.cfg.Locations,
		Prefix:    e.cfg.SQLMigrationPrefix,
		Separator: e.cfg.SQLMigrationSeparator,
		Suffix:    e.cfg.SQLMigrationSuffix,
		Encoding:  e.cfg.Encoding,
		FS:        e.FS,
	}
	return l.Scan()
}

// schemasToConsider is the configured schema list plus the metadata schema,
// deduplicated case-insensitively in order of first appearance.
func (e *Engine) schemasToConsider() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, name)
	}
	for _, s := range e.schemas {
		add(s)
	}
	add(e.metaSchema)
	return out
}

// Info returns the applied ledger entries, oldest first.
func (e *Engine) Info(ctx context.Context) ([]metadata.Entry, error) {
	if err := e.initialize(ctx); err != nil {
		return nil, err
	}
	exists, err := e.store.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return e.store.ListApplied(ctx)
}
