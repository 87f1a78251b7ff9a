package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mirajehossain/evolvex/internal/config"
	"github.com/mirajehossain/evolvex/internal/connection"
	"github.com/mirajehossain/evolvex/internal/engine"
	"github.com/mirajehossain/evolvex/internal/lock"
	"github.com/mirajehossain/evolvex/internal/logger"
)

const (
	exitOK         = 0
	exitValidation = 2
	exitLocked     = 3
	exitFail       = 4
	exitUsage      = 5
)

func main() {
	os.Exit(run())
}

// kvFlags collects repeatable -placeholder key=value pairs.
type kvFlags map[string]string

func (f kvFlags) String() string { return fmt.Sprintf("%v", map[string]string(f)) }

func (f kvFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	f[k] = val
	return nil
}

func run() int {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" || os.Args[1] == "help" {
		usage()
		return exitOK
	}
	cmd := os.Args[1]
	switch cmd {
	case config.CommandMigrate, config.CommandValidate, config.CommandRepair, config.CommandErase, config.CommandInfo:
	default:
		usage()
		return exitUsage
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	conf := fs.String("config", "", "Optional YAML config path")
	driver := fs.String("driver", "", "Database driver: mysql, postgres or sqlite (or EVOLVEX_DRIVER)")
	dsn := fs.String("dsn", "", "Database DSN (or EVOLVEX_DSN)")
	locations := fs.String("locations", "", "Comma-separated migration directories (or EVOLVEX_LOCATIONS)")
	schemas := fs.String("schemas", "", "Comma-separated schemas to manage (or EVOLVEX_SCHEMAS)")
	table := fs.String("table", "", "Metadata table name")
	tableSchema := fs.String("table-schema", "", "Schema holding the metadata table")
	target := fs.String("target", "", "Target version cap for migrate")
	jsonOut := fs.Bool("json", false, "JSON logs")
	installedBy := fs.String("installed-by", "", "Override installed_by value")
	lockTimeout := fs.Int("lock-timeout", 0, "Advisory lock timeout seconds (MySQL only)")
	eraseDisabled := fs.Bool("erase-disabled", false, "Refuse to erase anything (production safety switch)")
	eraseOnError := fs.Bool("erase-on-validation-error", false, "Erase and re-migrate when validation fails")
	placeholders := kvFlags{}
	fs.Var(placeholders, "placeholder", "Script placeholder as key=value (repeatable)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return exitUsage
	}

	cfg, err := config.LoadYAML(*conf)
	if err != nil && *conf != "" {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	cfg = config.MergeEnv(cfg)
	cfg.Command = cmd
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *dsn != "" {
		cfg.DSN = *dsn
	}
	if *locations != "" {
		cfg.Locations = splitList(*locations)
	}
	if *schemas != "" {
		cfg.Schemas = splitList(*schemas)
	}
	if *table != "" {
		cfg.MetadataTableName = *table
	}
	if *tableSchema != "" {
		cfg.MetadataTableSchema = *tableSchema
	}
	if *target != "" {
		cfg.TargetVersion = *target
	}
	if *installedBy != "" {
		cfg.InstalledBy = *installedBy
	}
	if *lockTimeout > 0 {
		cfg.LockTimeoutSec = *lockTimeout
	}
	if *jsonOut {
		cfg.JSON = true
	}
	if *eraseDisabled {
		cfg.IsEraseDisabled = true
	}
	if *eraseOnError {
		cfg.MustEraseOnValidationError = true
	}
	for k, v := range placeholders {
		if cfg.Placeholders == nil {
			cfg.Placeholders = map[string]string{}
		}
		cfg.Placeholders[k] = v
	}

	log := logger.New(cfg.JSON, os.Stdout)

	if cfg.Driver == "" || cfg.DSN == "" {
		fmt.Fprintln(os.Stderr, "-driver and -dsn (or EVOLVEX_DRIVER/EVOLVEX_DSN) are required")
		return exitUsage
	}

	provider := connection.Open(cfg.Driver, cfg.DSN)
	defer provider.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cross-process guard for MySQL deployments: two operators must not race
	// on the same changelog.
	if cfg.Driver == "mysql" {
		db, err := provider.Connect(ctx)
		if err != nil {
			log.Error("connect failed", map[string]any{"error": err.Error()})
			return exitFail
		}
		lockSchema := cfg.MetadataTableSchema
		if lockSchema == "" && len(cfg.Schemas) > 0 {
			lockSchema = cfg.Schemas[0]
		}
		l := lock.New(lock.KeyFor(lockSchema, cfg.MetadataTableName))
		if err := l.Acquire(ctx, db, cfg.LockTimeout()); err != nil {
			log.Error("failed to acquire lock", map[string]any{"error": err.Error(), "key": l.Key()})
			return exitLocked
		}
		defer func() { _ = l.Release(ctx) }()
	}

	eng, err := engine.New(*cfg, log, provider)
	if err != nil {
		log.Error("invalid configuration", map[string]any{"error": err.Error()})
		return exitUsage
	}

	start := time.Now()
	switch cmd {
	case config.CommandMigrate:
		err = eng.Migrate(ctx)
	case config.CommandValidate:
		err = eng.Validate(ctx)
	case config.CommandRepair:
		err = eng.Repair(ctx)
	case config.CommandErase:
		err = eng.Erase(ctx)
	case config.CommandInfo:
		entries, ierr := eng.Info(ctx)
		err = ierr
		if ierr == nil {
			for _, entry := range entries {
				log.Info("applied", map[string]any{
					"id":           entry.ID,
					"version":      entry.Version.String(),
					"script":       entry.Name,
					"checksum":     entry.Checksum,
					"installed_on": entry.InstalledOn.UTC().Format(time.RFC3339),
					"installed_by": entry.InstalledBy,
				})
			}
			log.Info("summary", map[string]any{"applied": len(entries)})
		}
	}
	if err != nil {
		log.Error(cmd+" failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if engine.IsValidationError(err) {
			return exitValidation
		}
		return exitFail
	}
	return exitOK
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func usage() {
	fmt.Print(`evolvex - bring a database schema to a declared version

Usage:
  evolvex <command> [flags]

Commands:
  migrate    Apply outstanding migration scripts in version order
  validate   Check on-disk scripts against the recorded history
  repair     Rewrite drifted checksums in the metadata table
  erase      Drop or empty the schemas the engine has a mandate over
  info       List applied migrations

Flags:
  -config PATH                 Optional YAML configuration file
  -driver NAME                 mysql, postgres or sqlite
  -dsn DSN                     Database connection string
  -locations DIRS              Comma-separated script directories (default Sql_Scripts)
  -schemas NAMES               Comma-separated schemas to manage
  -table NAME                  Metadata table name (default changelog)
  -table-schema NAME           Schema holding the metadata table
  -target VERSION              Version cap for migrate
  -placeholder KEY=VALUE       Script placeholder (repeatable)
  -installed-by NAME           Recorded author of ledger entries
  -erase-disabled              Never destroy anything (production safety switch)
  -erase-on-validation-error   Erase and re-migrate when validation fails
  -lock-timeout SECONDS        Advisory lock timeout (MySQL only, default 30)
  -json                        JSON log output
`)
}
