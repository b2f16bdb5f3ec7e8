package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Graph.URI)
	assert.Equal(t, "sample-app-db", cfg.Graph.Database)
	assert.Equal(t, 10, cfg.Graph.MaxConnections)
	assert.Equal(t, 10*time.Second, cfg.Graph.ConnectTimeout)
	assert.Equal(t, "data/iam-schema.cypher", cfg.Bootstrap.SchemaFile)
	assert.Equal(t, "data/iam-data.cypher", cfg.Bootstrap.DataFile)
	assert.EqualValues(t, 3, cfg.Bootstrap.ExpectedCount)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Tracing.Endpoint)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("GRAPH_URI", "neo4j://graph:7687")
	t.Setenv("GRAPH_DATABASE", "iam-staging")
	t.Setenv("GRAPH_CONNECT_TIMEOUT", "3s")
	t.Setenv("BOOTSTRAP_EXPECTED_COUNT", "7")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "neo4j://graph:7687", cfg.Graph.URI)
	assert.Equal(t, "iam-staging", cfg.Graph.Database)
	assert.Equal(t, 3*time.Second, cfg.Graph.ConnectTimeout)
	assert.EqualValues(t, 7, cfg.Bootstrap.ExpectedCount)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.AllowedOrigins())
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iamgraph.yaml")
	content := `
graph:
  uri: bolt://from-file:7687
  database: iam-file
retry:
  max_attempts: 2
  initial_interval: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("GRAPH_DATABASE", "iam-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bolt://from-file:7687", cfg.Graph.URI)
	assert.Equal(t, "iam-env", cfg.Graph.Database, "environment wins over the file")
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadValidationErrors(t *testing.T) {
	t.Setenv("SERVER_PORT", "70000")
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "http.port must be at most 65535")
	assert.Contains(t, err.Error(), "logging.level must be one of")
	assert.Contains(t, err.Error(), "retry.max_attempts must be at least 1")
}

func TestLoadExpectedCountZero(t *testing.T) {
	t.Setenv("BOOTSTRAP_EXPECTED_COUNT", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Bootstrap.ExpectedCount)
}

func TestLoadCORSCredentials(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.HTTP.AllowCredentials)

	t.Setenv("SERVER_ALLOWED_ORIGINS", "http://a.test")
	t.Setenv("SERVER_ALLOW_CREDENTIALS", "true")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.HTTP.AllowCredentials)

	t.Setenv("SERVER_ALLOWED_ORIGINS", "http://a.test,*")
	_, err = Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "http.allow_credentials requires explicit allowed origins")
}

func TestFormatFieldPath(t *testing.T) {
	assert.Equal(t, "graph.max_connections", formatFieldPath("Config.Graph.MaxConnections"))
	assert.Equal(t, "http.port", formatFieldPath("Config.HTTP.Port"))
	assert.Equal(t, "Port", formatFieldPath("Port"))
}
