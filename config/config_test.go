package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Robot, cfg.Robot)
	assert.Equal(t, 60, cfg.Actions.NavigateRetries)
	assert.Equal(t, 5*time.Minute, cfg.Health.ManualCooldown)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robotcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
robot:
  id: amr-7
  base_url: http://10.0.0.7:8090
actions:
  poll_interval: 500ms
  jack_up_wait: 10s
messaging:
  enabled: true
  backend: kafka
points:
  - id: 104_load
    x: 1.5
    y: -2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "amr-7", cfg.Robot.ID)
	assert.Equal(t, "http://10.0.0.7:8090", cfg.Robot.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Robot.Timeout, "unset fields keep defaults")
	assert.Equal(t, 500*time.Millisecond, cfg.Actions.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Actions.JackUpWait)
	assert.Equal(t, "kafka", cfg.Messaging.Backend)
	require.Len(t, cfg.Points, 1)
	assert.Equal(t, PointConfig{ID: "104_load", X: 1.5, Y: -2}, cfg.Points[0])
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("robot: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Robot.ID = "saved"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Robot.ID)
	assert.Equal(t, cfg.Health.RecoveryPaths, loaded.Health.RecoveryPaths)
}
