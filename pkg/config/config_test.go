package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "default", cfg.Namespace)
	assert.Equal(t, "kubectl", cfg.Kubectl)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.ReadyTimeout)
	assert.NotEmpty(t, cfg.HistoryPath)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"namespace: staging\nimage: busybox:1.36\nready_timeout: 30s\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Namespace)
	assert.Equal(t, "busybox:1.36", cfg.Image)
	assert.Equal(t, 30*time.Second, cfg.ReadyTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, "kubectl", cfg.Kubectl)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("namespace: staging\n"), 0644))
	t.Setenv("PVCSHIP_NAMESPACE", "prod")
	t.Setenv("PVCSHIP_METRICS_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Namespace)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}
