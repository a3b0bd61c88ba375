package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, ModeCollect, cfg.Diagnostics.Mode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Development)
	assert.Equal(t, 4, cfg.Resolve.Workers)
	assert.Equal(t, "127.0.0.1:0", cfg.NFS.Listen)
	assert.Empty(t, cfg.NFS.MountOptionsReadonly)
	assert.Equal(t, 1024, cfg.Graph.CacheSize)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clrmeta.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
diagnostics:
  mode: strict
log:
  level: debug
  development: true
resolve:
  workers: 16
nfs:
  mount_options_readonly: [actimeo=1, soft]
`), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, cfg.Diagnostics.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, 16, cfg.Resolve.Workers)
	assert.Equal(t, []string{"actimeo=1", "soft"}, cfg.NFS.MountOptionsReadonly)
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLRMETA_DIAGNOSTICS_MODE", "strict")
	t.Setenv("CLRMETA_RESOLVE_WORKERS", "2")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, cfg.Diagnostics.Mode)
	assert.Equal(t, 2, cfg.Resolve.Workers)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := map[string][2]string{
		"bad mode":     {"CLRMETA_DIAGNOSTICS_MODE", "lenient"},
		"zero workers": {"CLRMETA_RESOLVE_WORKERS", "0"},
		"zero cache":   {"CLRMETA_GRAPH_CACHE_SIZE", "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load(New(), "")
			assert.Error(t, err)
		})
	}
}
