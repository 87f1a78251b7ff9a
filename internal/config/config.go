package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Commands accepted by the engine and the CLI.
const (
	CommandMigrate  = "migrate"
	CommandValidate = "validate"
	CommandRepair   = "repair"
	CommandErase    = "erase"
	CommandInfo     = "info"
)

type Config struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Command string `yaml:"command"`

	Schemas             []string `yaml:"schemas"`
	MetadataTableSchema string   `yaml:"metadata_table_schema"`
	MetadataTableName   string   `yaml:"metadata_table_name"`

	Locations []string `yaml:"locations"`
	Encoding  string   `yaml:"encoding"`

	SQLMigrationPrefix    string `yaml:"sql_migration_prefix"`
	SQLMigrationSeparator string `yaml:"sql_migration_separator"`
	SQLMigrationSuffix    string `yaml:"sql_migration_suffix"`

	PlaceholderPrefix string            `yaml:"placeholder_prefix"`
	PlaceholderSuffix string            `yaml:"placeholder_suffix"`
	Placeholders      map[string]string `yaml:"placeholders"`

	TargetVersion string `yaml:"target_version"`

	IsEraseDisabled            bool `yaml:"is_erase_disabled"`
	MustEraseOnValidationError bool `yaml:"must_erase_on_validation_error"`

	InstalledBy    string `yaml:"installed_by"`
	JSON           bool   `yaml:"json"`
	LockTimeoutSec int    `yaml:"lock_timeout_sec"`
}

func Default() *Config {
	return &Config{
		Command:               CommandMigrate,
		MetadataTableName:     "changelog",
		Locations:             []string{"Sql_Scripts"},
		Encoding:              "UTF-8",
		SQLMigrationPrefix:    "V",
		SQLMigrationSeparator: "__",
		SQLMigrationSuffix:    ".sql",
		PlaceholderPrefix:     "${",
		PlaceholderSuffix:     "}",
		LockTimeoutSec:        30,
	}
}

func LoadYAML(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

func MergeEnv(cfg *Config) *Config {
	if v := os.Getenv("EVOLVEX_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("EVOLVEX_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("EVOLVEX_LOCATIONS"); v != "" {
		cfg.Locations = splitList(v)
	}
	if v := os.Getenv("EVOLVEX_SCHEMAS"); v != "" {
		cfg.Schemas = splitList(v)
	}
	if v := os.Getenv("EVOLVEX_TABLE"); v != "" {
		cfg.MetadataTableName = v
	}
	if v := os.Getenv("EVOLVEX_TARGET_VERSION"); v != "" {
		cfg.TargetVersion = v
	}
	if v := os.Getenv("EVOLVEX_INSTALLED_BY"); v != "" {
		cfg.InstalledBy = v
	}
	if v := os.Getenv("EVOLVEX_LOCK_TIMEOUT_SEC"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.LockTimeoutSec = i
		}
	}
	return cfg
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

// Validate checks the fields every command needs. Connection settings are
// checked by the connection provider, which knows whether a caller-supplied
// handle makes driver/dsn optional.
func (c *Config) Validate() error {
	switch c.Command {
	case CommandMigrate, CommandValidate, CommandRepair, CommandErase, CommandInfo:
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalid, c.Command)
	}
	if len(c.Locations) == 0 {
		return fmt.Errorf("%w: at least one location is required", ErrInvalid)
	}
	if c.MetadataTableName == "" {
		return fmt.Errorf("%w: metadata_table_name is required", ErrInvalid)
	}
	if c.SQLMigrationPrefix == "" || c.SQLMigrationSeparator == "" || c.SQLMigrationSuffix == "" {
		return fmt.Errorf("%w: migration filename affixes must not be empty", ErrInvalid)
	}
	if c.PlaceholderPrefix == "" || c.PlaceholderSuffix == "" {
		return fmt.Errorf("%w: placeholder affixes must not be empty", ErrInvalid)
	}
	return nil
}

func (c *Config) LockTimeout() time.Duration {
	if c.LockTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LockTimeoutSec) * time.Second
}
