package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ftmgraph/internal/etl"
	"ftmgraph/internal/neo4jdb"
)

// EnvPrefix prefixes every environment override, e.g. FTMGRAPH_BATCH_SIZE
// for "batch-size" and FTMGRAPH_NEO4J_URI for "neo4j.uri".
const EnvPrefix = "FTMGRAPH"

// Config is the resolved application configuration.
type Config struct {
	DataDir  string
	LogMode  string
	LogLevel string
	// Model is an optional schema model file; empty uses the built-in one.
	Model         string
	ProgressEvery int
	// RunTimeout bounds a single job run.
	RunTimeout time.Duration

	Export etl.ExportOptions
	Neo4j  neo4jdb.Config

	// File is the config file that was read, if any.
	File string
}

// DBPath is the location of the job database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "ftmgraph.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data-dir", defaultDataDir())
	v.SetDefault("log-mode", "dev")
	v.SetDefault("log-level", "info")
	v.SetDefault("out", "graph")
	v.SetDefault("prefix", "file:///")
	v.SetDefault("batch-size", 50000)
	v.SetDefault("min-identifier-length", 7)
	v.SetDefault("name-requires-space", true)
	v.SetDefault("keys", etl.KeysMemory)
	v.SetDefault("reset", false)
	v.SetDefault("model", "")
	v.SetDefault("progress-every", 100000)
	v.SetDefault("run-timeout", "2h")

	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "")
	v.SetDefault("neo4j.timeout", "10s")
}

// Load resolves the configuration. Precedence, highest first: flags
// that were set, FTMGRAPH_* environment variables, the config file,
// defaults. The config file is path when given, else ./ftmgraph.yaml,
// else <user config dir>/ftmgraph/config.yaml; a missing implicit file
// is not an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

// bindFlags binds every flag to the key of the same name. Flags named
// neo4j-<x> bind to the nested key neo4j.<x>.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := f.Name
		if rest, ok := strings.CutPrefix(key, "neo4j-"); ok {
			key = "neo4j." + rest
		}
		if berr := v.BindPFlag(key, f); berr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, berr)
		}
	})
	return err
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:       v.GetString("data-dir"),
		LogMode:       v.GetString("log-mode"),
		LogLevel:      v.GetString("log-level"),
		Model:         v.GetString("model"),
		ProgressEvery: v.GetInt("progress-every"),
		RunTimeout:    v.GetDuration("run-timeout"),
		Export: etl.ExportOptions{
			OutputDir:           v.GetString("out"),
			Prefix:              v.GetString("prefix"),
			BatchSize:           v.GetInt("batch-size"),
			Reset:               v.GetBool("reset"),
			MinIdentifierLength: v.GetInt("min-identifier-length"),
			SingleTokenNames:    !v.GetBool("name-requires-space"),
			Keys:                v.GetString("keys"),
		},
		Neo4j: neo4jdb.Config{
			URI:      v.GetString("neo4j.uri"),
			User:     v.GetString("neo4j.user"),
			Password: v.GetString("neo4j.password"),
			Database: v.GetString("neo4j.database"),
			Timeout:  v.GetDuration("neo4j.timeout"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would only fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data-dir must not be empty"))
	}
	if c.Export.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch-size must be positive, got %d", c.Export.BatchSize))
	}
	if c.Export.MinIdentifierLength < 0 {
		errs = append(errs, fmt.Errorf("min-identifier-length must not be negative, got %d", c.Export.MinIdentifierLength))
	}
	switch c.Export.Keys {
	case etl.KeysMemory, etl.KeysSQLite:
	default:
		errs = append(errs, fmt.Errorf("keys must be %q or %q, got %q", etl.KeysMemory, etl.KeysSQLite, c.Export.Keys))
	}
	if c.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("run-timeout must not be negative, got %s", c.RunTimeout))
	}
	if c.Neo4j.Timeout < 0 {
		errs = append(errs, fmt.Errorf("neo4j.timeout must not be negative, got %s", c.Neo4j.Timeout))
	}
	return errors.Join(errs...)
}

func findConfigFile() string {
	candidates := []string{"ftmgraph.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "ftmgraph", "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ftmgraph")
	}
	return ".ftmgraph"
}
