package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/introspect"
	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/pkg/pgphase"
)

// Config represents the pgphase.yaml configuration file.
type Config struct {
	DatabaseURL   string          `yaml:"database_url"`
	Driver        string          `yaml:"driver"`
	Schema        string          `yaml:"schema"`
	MigrationsDir string          `yaml:"migrations_dir"`
	LockFile      string          `yaml:"lock_file"`
	CamelCase     bool            `yaml:"camel_case"`
	SchemaOrder   []string        `yaml:"schema_order"`
	Skip          introspect.Skip `yaml:"skip"`
	// Rename is the default rename policy: prompt, strict, create or auto.
	Rename string `yaml:"rename"`
	// Renames answers known rename questions up front.
	Renames rename.Static `yaml:"renames"`
}

func defaultConfig() *Config {
	return &Config{
		Driver:        pgphase.DriverPQ,
		Schema:        "schema.yaml",
		MigrationsDir: "migrations",
	}
}

// Environment variables and the flags they stand in for.
var envFlags = []struct{ env, flag string }{
	{"PGPHASE_DRIVER", "driver"},
	{"PGPHASE_SCHEMA", "schema"},
	{"PGPHASE_MIGRATIONS_DIR", "migrations-dir"},
	{"PGPHASE_LOCK_FILE", "lock-file"},
	{"PGPHASE_RENAME", "rename"},
}

// loadConfig merges defaults, the config file, environment variables and
// flags, in increasing precedence. A missing config file is not an error
// unless the --config flag named it.
func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	cfg := defaultConfig()

	path, _ := flags.GetString("config")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.Expand(string(data), os.Getenv)), cfg); err != nil {
			return nil, alerr.Wrap(alerr.ErrConfig, err, "failed to parse config file").With("file", path)
		}
	case errors.Is(err, fs.ErrNotExist) && !flags.Changed("config"):
	default:
		return nil, alerr.Wrap(alerr.ErrConfig, err, "failed to read config file").With("file", path)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	if url := os.Getenv("PGPHASE_DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	for _, e := range envFlags {
		if v := os.Getenv(e.env); v != "" {
			cfg.set(e.flag, v)
		}
	}
	if v := os.Getenv("PGPHASE_CAMEL_CASE"); v != "" {
		cfg.CamelCase = v == "1" || strings.EqualFold(v, "true")
	}

	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "database-url":
			cfg.DatabaseURL = f.Value.String()
		case "camel-case":
			cfg.CamelCase, _ = flags.GetBool("camel-case")
		default:
			cfg.set(f.Name, f.Value.String())
		}
	})
	return cfg, nil
}

func (c *Config) set(flag, value string) {
	switch flag {
	case "driver":
		c.Driver = value
	case "schema":
		c.Schema = value
	case "migrations-dir":
		c.MigrationsDir = value
	case "lock-file":
		c.LockFile = value
	case "rename":
		c.Rename = value
	}
}

// options converts the configuration into client options.
func (c *Config) options(log *slog.Logger) []pgphase.Option {
	opts := []pgphase.Option{
		pgphase.WithDatabaseURL(c.DatabaseURL),
		pgphase.WithDriver(c.Driver),
		pgphase.WithSchemaFile(c.Schema),
		pgphase.WithMigrationsDir(c.MigrationsDir),
		pgphase.WithCamelCase(c.CamelCase),
		pgphase.WithSkip(c.Skip),
		pgphase.WithLogger(log),
	}
	if c.LockFile != "" {
		opts = append(opts, pgphase.WithLockFile(c.LockFile))
	}
	if len(c.SchemaOrder) > 0 {
		opts = append(opts, pgphase.WithSchemaOrder(c.SchemaOrder...))
	}
	return opts
}
