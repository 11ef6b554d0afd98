package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "vietmarket.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
Name: vietmarket-api
Host: 0.0.0.0
Port: 8888
ApiKey: test-key
Postgres:
  DSN: postgres://localhost:5432/vietmarket_test?sslmode=disable
`

func TestLoadMinimal(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Env, "env defaults to test")
	assert.True(t, cfg.IsTestEnv())
	assert.Equal(t, "test-key", cfg.ApiKey)
	assert.Equal(t, 10, cfg.TTL.Short)
	assert.Equal(t, 60, cfg.TTL.Medium)
	assert.Equal(t, 300, cfg.TTL.Long)
	assert.Equal(t, filepath.Dir(path), cfg.BaseDir())
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), minimalConfig+"Env: staging\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadApiKeyFromEnv(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	t.Setenv("HISTORY_API_KEY", "env-key")
	body := `
Name: vietmarket-api
Host: 0.0.0.0
Port: 8888
`
	path := writeConfig(t, t.TempDir(), body)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.ApiKey)
}

func TestSourcesSectionDefaultsWhenAbsent(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	src := cfg.SourcesConfig()
	require.NotNil(t, src)
	assert.NotEmpty(t, src.VCIBaseURL)
	news := cfg.NewsConfig()
	require.NotNil(t, news)
	assert.Greater(t, news.Rate, 0.0)
}

func TestSourcesSectionHydratesFromFile(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yaml"),
		[]byte("vci_base_url: https://vci.test/api\n"), 0o644))
	path := writeConfig(t, dir, minimalConfig+"Sources:\n  File: sources.yaml\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://vci.test/api", cfg.SourcesConfig().VCIBaseURL)
}
