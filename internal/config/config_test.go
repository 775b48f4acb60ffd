package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jordan-tan/vizier/pkg/constants"
)

func TestLoadDefaultsWithNoConfigSources(t *testing.T) {
	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)
	require.Equal(t, constants.DefaultGCThresholdDays, cfg.GC.ThresholdDays)
	require.Equal(t, "summary", cfg.Schedule.DefaultFormat)
}

func TestLoadReadsRepoConfigFile(t *testing.T) {
	repoRoot := t.TempDir()
	vizierDir := filepath.Join(repoRoot, constants.VizierDir)
	require.NoError(t, os.MkdirAll(vizierDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vizierDir, constants.ConfigFileName), []byte("backend = \"agent-x\"\n"), 0o644))

	cfg, err := NewLoader(repoRoot).Load()
	require.NoError(t, err)
	require.Equal(t, "agent-x", cfg.Backend)
}

func TestExplicitConfigFileOverridesRepoConfig(t *testing.T) {
	repoRoot := t.TempDir()
	vizierDir := filepath.Join(repoRoot, constants.VizierDir)
	require.NoError(t, os.MkdirAll(vizierDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vizierDir, constants.ConfigFileName), []byte("backend = \"repo-backend\"\n"), 0o644))

	explicit := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(explicit, []byte("backend = \"explicit-backend\"\n"), 0o644))

	cfg, err := NewLoader(repoRoot).WithConfigFile(explicit).Load()
	require.NoError(t, err)
	require.Equal(t, "explicit-backend", cfg.Backend)
}

func TestEnvConfigFileUsedWhenNoRepoConfig(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "env.toml")
	require.NoError(t, os.WriteFile(explicit, []byte("backend = \"env-backend\"\n"), 0o644))
	t.Setenv(constants.EnvConfigFile, explicit)

	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)
	require.Equal(t, "env-backend", cfg.Backend)
}
