package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "foundry.db"), cfg.DBPath)
	assert.Equal(t, 3, cfg.Defaults.Budget)
	assert.Equal(t, 2*time.Minute, cfg.Defaults.StageTimeout)
	assert.Equal(t, "openai", cfg.Generator.Provider)
	assert.Equal(t, "warn", cfg.Validation.UnresolvedImports)
	assert.Equal(t, 20, cfg.Context.MaxSummaries)
	assert.Equal(t, 500, cfg.Context.MaxDetailBytes)
	assert.Equal(t, filepath.Join(dir, "workspaces"), cfg.WorkspacesDir())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
defaults:
  budget: 5
  stage_timeout: 45s
generator:
  provider: lua
  script: /tmp/gen.lua
toolchain:
  python:
    install: pip install -r "$FOUNDRY_DEPENDENCIES_FILE"
validation:
  unresolved_imports: error
`)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Defaults.Budget)
	assert.Equal(t, 45*time.Second, cfg.Defaults.StageTimeout)
	assert.Equal(t, "fastapi", cfg.Defaults.Template)
	assert.Equal(t, "lua", cfg.Generator.Provider)
	assert.Equal(t, "/tmp/gen.lua", cfg.Generator.Script)
	assert.Equal(t, `pip install -r "$FOUNDRY_DEPENDENCIES_FILE"`, cfg.Toolchain["python"].Install)
	assert.Equal(t, "error", cfg.Validation.UnresolvedImports)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "defaults:\n  budget: 5\n")
	t.Setenv("FOUNDRY_DEFAULTS_BUDGET", "7")
	t.Setenv("FOUNDRY_GENERATOR_API_KEY", "sk-test")
	t.Setenv("FOUNDRY_TOOLCHAIN_JAVA_BUILD", "gradle build")
	t.Setenv("FOUNDRY_LOG_LEVEL", "debug")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Defaults.Budget)
	assert.Equal(t, "sk-test", cfg.Generator.APIKey)
	assert.Equal(t, "gradle build", cfg.Toolchain["java"].Build)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_APIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", cfg.Generator.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"policy":      "validation:\n  unresolved_imports: maybe\n",
		"budget":      "defaults:\n  budget: 0\n",
		"lua script":  "generator:\n  provider: lua\n",
		"log format":  "log:\n  format: xml\n",
		"broken yaml": "defaults: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, content)

			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestNew_UsesDataDirEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOUNDRY_DATA_DIR", dir)

	cfg, err := New()

	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, cfg.WorkspacesDir())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "defaults.stage_timeout", envKey("FOUNDRY_DEFAULTS_STAGE_TIMEOUT"))
	assert.Equal(t, "toolchain.python.install", envKey("FOUNDRY_TOOLCHAIN_PYTHON_INSTALL"))
	assert.Equal(t, "db_path", envKey("FOUNDRY_DB_PATH"))
	assert.Equal(t, "", envKey("FOUNDRY_DATA_DIR"))
}
