package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvAPIToken, "")
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Dir())
	assert.Equal(t, "http://localhost:8000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout())
	assert.Equal(t, filepath.Join(dir, "exports"), cfg.Export.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)

	layout, err := cfg.Layout()
	require.NoError(t, err)
	assert.Equal(t, "a4", layout.Paper.Name)
	assert.Equal(t, 1.0, layout.MarginIn)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvAPIToken, "")
	dir := t.TempDir()

	content := `
[api]
base_url = "https://crm.example.com/api"
timeout_seconds = 5

[export]
paper = "letter"
orientation = "landscape"
sanitize = true

[server]
port = 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout())
	assert.Equal(t, 10, cfg.API.Burst, "unset keys keep their defaults")
	assert.True(t, cfg.Export.Sanitize)
	assert.Equal(t, 9090, cfg.Server.Port)

	layout, err := cfg.Layout()
	require.NoError(t, err)
	assert.True(t, layout.Landscape)
	assert.Equal(t, 11.0, layout.Width())
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvAPIURL, "https://env.example.com")
	t.Setenv(EnvAPIToken, "secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, "secret", cfg.API.Token)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvAPIToken, "")

	tests := []struct {
		name    string
		content string
	}{
		{"relative base url", "[api]\nbase_url = \"/api\"\n"},
		{"unknown paper", "[export]\npaper = \"b5\"\n"},
		{"huge margin", "[export]\nmargin_in = 5.0\n"},
		{"bad log level", "[log]\nlevel = \"loud\"\n"},
		{"bad port", "[server]\nport = 70000\n"},
		{"malformed toml", "[api\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(tt.content), 0600))
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvAPIToken, "")
	dir := t.TempDir()

	cfg := Default(dir)
	cfg.API.BaseURL = "https://crm.example.com"
	cfg.Export.Orientation = "landscape"
	cfg.Catalog.File = filepath.Join(dir, "fields.yaml")
	require.NoError(t, cfg.Save())

	info, err := os.Stat(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.API, loaded.API)
	assert.Equal(t, cfg.Export, loaded.Export)
	assert.Equal(t, cfg.Catalog, loaded.Catalog)
}

func TestEffectiveDir(t *testing.T) {
	t.Setenv(EnvDir, "/tmp/pocket-docs-env")
	dir, source, err := EffectiveDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pocket-docs-env", dir)
	assert.Equal(t, "environment", source)

	home := t.TempDir()
	t.Setenv(EnvDir, "")
	t.Setenv("HOME", home)
	dir, source, err = EffectiveDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".pocket-docs"), dir)
	assert.Equal(t, "default", source)
}
