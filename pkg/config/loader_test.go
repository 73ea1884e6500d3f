package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScoutYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scout.yaml"), []byte(content), 0o644))
	return dir
}

func TestInitializeWithoutYAMLUsesDefaults(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8111, cfg.Server.Port)
	assert.Equal(t, "data/pipeline.db", cfg.Database.Path)
	assert.Equal(t, "https://api.govsignal.dev/apps", cfg.Signals.BaseURL)
	assert.Equal(t, "claude", cfg.Generator.Binary)
	assert.Equal(t, 3, cfg.Snapshot().MaxConcurrentRuns)
}

func TestInitializeMergesYAMLOverDefaults(t *testing.T) {
	dir := writeScoutYAML(t, `
server:
  port: 9000
database:
  path: /tmp/scout-test/runs.db
tunables:
  MAX_CONCURRENT_RUNS: 5
  LLM_MODEL: custom-model
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/tmp/scout-test/runs.db", cfg.Database.Path)

	snap := cfg.Snapshot()
	assert.Equal(t, 5, snap.MaxConcurrentRuns)
	assert.Equal(t, "custom-model", snap.LLMModel)
}

func TestInitializeSealsFactoryAfterOverrides(t *testing.T) {
	dir := writeScoutYAML(t, `
tunables:
  MAX_CONCURRENT_RUNS: 5
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, cfg.Tunables.Set("MAX_CONCURRENT_RUNS", 8))
	restored := cfg.Tunables.Reset()
	assert.Equal(t, 5, restored.MaxConcurrentRuns)
}

func TestInitializeExpandsEnvTemplates(t *testing.T) {
	t.Setenv("TEST_SIGNALS_URL", "https://signals.test.local/apps")
	dir := writeScoutYAML(t, `
signals:
  base_url: "{{.TEST_SIGNALS_URL}}"
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "https://signals.test.local/apps", cfg.Signals.BaseURL)
}

func TestInitializeEnvBeatsYAML(t *testing.T) {
	t.Setenv("SCOUT_PORT", "9999")
	t.Setenv("MAX_CONCURRENT_RUNS", "2")
	dir := writeScoutYAML(t, `
server:
  port: 9000
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Snapshot().MaxConcurrentRuns)
}

func TestInitializeResolvesProviderCredentials(t *testing.T) {
	t.Setenv("SIGNALS_API_KEY", "sk-test-123")
	t.Setenv("WORKSPACE_TOKEN", "wt-test-456")

	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Signals.APIKey)
	assert.Equal(t, "wt-test-456", cfg.Publisher.Token)
}

func TestInitializeRejectsUnknownTunable(t *testing.T) {
	dir := writeScoutYAML(t, `
tunables:
  NOT_A_REAL_KEY: 1
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown config key: NOT_A_REAL_KEY")
}

func TestInitializeValidatesTunables(t *testing.T) {
	dir := writeScoutYAML(t, `
tunables:
  MAX_CONCURRENT_RUNS: 0
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONCURRENT_RUNS must be at least 1")
}

func TestInitializeRejectsMalformedYAML(t *testing.T) {
	dir := writeScoutYAML(t, "server:\n  port: [not: valid\n")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}
