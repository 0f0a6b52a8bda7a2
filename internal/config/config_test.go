package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftmgraph/internal/etl"
)

// isolate points the user config dir and cwd at empty temp dirs so no
// real config file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg"))
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	return home
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "graph", cfg.Export.OutputDir)
	assert.Equal(t, "file:///", cfg.Export.Prefix)
	assert.Equal(t, 50000, cfg.Export.BatchSize)
	assert.Equal(t, 7, cfg.Export.MinIdentifierLength)
	assert.False(t, cfg.Export.SingleTokenNames)
	assert.Equal(t, etl.KeysMemory, cfg.Export.Keys)
	assert.False(t, cfg.Export.Reset)
	assert.Equal(t, "neo4j", cfg.Neo4j.User)
	assert.Empty(t, cfg.Neo4j.URI)
	assert.Equal(t, 10*time.Second, cfg.Neo4j.Timeout)
	assert.Equal(t, 2*time.Hour, cfg.RunTimeout)
	assert.Empty(t, cfg.File)
	assert.Equal(t, "ftmgraph.db", filepath.Base(cfg.DBPath()))
}

func TestConfigFileEnvAndFlags(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
out: /data/graph
batch-size: 1000
name-requires-space: false
keys: sqlite
neo4j:
  uri: bolt://file:7687
  database: sanctions
`), 0o644))

	t.Setenv("FTMGRAPH_BATCH_SIZE", "2000")
	t.Setenv("FTMGRAPH_NEO4J_URI", "bolt://env:7687")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("out", "", "")
	flags.String("neo4j-uri", "", "")
	flags.Int("min-identifier-length", 0, "")
	require.NoError(t, flags.Parse([]string{"--neo4j-uri", "bolt://flag:7687"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "/data/graph", cfg.Export.OutputDir, "unset flag must not shadow the file")
	assert.Equal(t, 2000, cfg.Export.BatchSize, "env overrides file")
	assert.Equal(t, "bolt://flag:7687", cfg.Neo4j.URI, "flag overrides env")
	assert.Equal(t, "sanctions", cfg.Neo4j.Database)
	assert.Equal(t, 7, cfg.Export.MinIdentifierLength)
	assert.True(t, cfg.Export.SingleTokenNames)
	assert.Equal(t, etl.KeysSQLite, cfg.Export.Keys)
}

func TestImplicitConfigFile(t *testing.T) {
	home := isolate(t)

	dir := filepath.Join(home, "xdg", "ftmgraph")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("prefix: http://files/\n"), 0o644))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://files/", cfg.Export.Prefix)

	// ./ftmgraph.yaml wins over the user config dir.
	require.NoError(t, os.WriteFile("ftmgraph.yaml", []byte("prefix: https://local/\n"), 0o644))
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://local/", cfg.Export.Prefix)
}

func TestMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)

	t.Setenv("FTMGRAPH_KEYS", "redis")
	t.Setenv("FTMGRAPH_BATCH_SIZE", "0")
	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys")
	assert.Contains(t, err.Error(), "batch-size")
}
