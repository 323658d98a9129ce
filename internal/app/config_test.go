package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemcp/internal/config"
)

func TestOverrides_Apply(t *testing.T) {
	tests := []struct {
		name      string
		overrides Overrides
		check     func(t *testing.T, cfg config.Config)
	}{
		{
			name:      "zero overrides keep defaults",
			overrides: Overrides{},
			check: func(t *testing.T, cfg config.Config) {
				def := config.GetDefaultConfig()
				assert.Equal(t, def.Namespace, cfg.Namespace)
				assert.Equal(t, def.Server, cfg.Server)
			},
		},
		{
			name: "all overrides",
			overrides: Overrides{
				Namespace:   "mcp",
				Kubeconfig:  "/tmp/kubeconfig",
				KubeContext: "kind-dev",
				Transport:   config.MCPTransportSSE,
				Host:        "0.0.0.0",
				Port:        9999,
			},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "mcp", cfg.Namespace)
				assert.Equal(t, "/tmp/kubeconfig", cfg.Kubeconfig)
				assert.Equal(t, "kind-dev", cfg.KubeContext)
				assert.Equal(t, config.MCPTransportSSE, cfg.Server.Transport)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 9999, cfg.Server.Port)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GetDefaultConfig()
			tt.overrides.Apply(&cfg)
			tt.check(t, cfg)
		})
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
namespace: from-file
lifecycle:
  idPrefix: mcp
server:
  port: 8123
`), 0644))

	cfg := NewConfig(false, dir)
	cfg.Overrides.Namespace = "from-flag"

	settings, err := LoadSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", settings.Namespace)
	assert.Equal(t, "mcp", settings.Lifecycle.IDPrefix)
	assert.Equal(t, 8123, settings.Server.Port)
}

func TestLoadSettings_InvalidOverride(t *testing.T) {
	cfg := NewConfig(false, t.TempDir())
	cfg.Overrides.Transport = "carrier-pigeon"

	_, err := LoadSettings(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestInitLogging(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "debug json", cfg: Config{Debug: true, LogFormat: "json"}},
		{name: "silent", cfg: Config{Silent: true, LogLevel: "warn"}},
		{name: "bad level", cfg: Config{LogLevel: "loud"}, wantErr: true},
		{name: "bad format", cfg: Config{LogFormat: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := InitLogging(&tt.cfg, &buf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
