package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"startvnc/pkg/file"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefaultConfig verifies the built-in defaults the tool runs with when no
// file or environment is present.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "procs", cfg.SSH.User)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, "192.168.200", cfg.Aliases.Prefixes["l"])
	assert.Equal(t, "x0tigervncserver", cfg.Server.Binary)
	assert.Equal(t, "vncviewer", cfg.Viewer.Binary)
	assert.Equal(t, 9900, cfg.Tunnel.LocalPortBase)
	assert.True(t, cfg.Server.LocalhostOnly)
	assert.True(t, cfg.Server.StopOnExit)
}

// TestLoadConfig_MissingFile verifies that a nonexistent file leaves the
// defaults in place instead of failing.
func TestLoadConfig_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")

	cfg, err := LoadConfig(path, file.NewFileService())

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestLoadConfig_FileOverridesDefaults verifies that file values replace
// defaults while unset sections keep them.
func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
ssh:
  user: alice
  port: 2222
aliases:
  prefixes:
    w: "10.0.3"
tunnel:
  local_port_base: 15900
`)

	cfg, err := LoadConfig(path, file.NewFileService())

	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.SSH.User)
	assert.Equal(t, 2222, cfg.SSH.Port)
	assert.Equal(t, "10.0.3", cfg.Aliases.Prefixes["w"])
	assert.Equal(t, 15900, cfg.Tunnel.LocalPortBase)
	assert.Equal(t, "x0tigervncserver", cfg.Server.Binary)
}

// TestLoadConfig_EnvOverridesFile verifies the layering order: environment
// variables win over the file.
func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
ssh:
  user: alice
`)
	t.Setenv("STARTVNC_SSH_USER", "bob")
	t.Setenv("STARTVNC_SSH_PRIVATE_KEY_PATH", "/tmp/test_key")
	t.Setenv("STARTVNC_SERVER_LOCALHOST_ONLY", "false")

	cfg, err := LoadConfig(path, file.NewFileService())

	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.SSH.User)
	assert.Equal(t, "/tmp/test_key", cfg.SSH.PrivateKeyPath)
	assert.False(t, cfg.Server.LocalhostOnly)
}

// TestLoadConfig_MalformedFile verifies that unparseable YAML is an error
// rather than a silent fallback to defaults.
func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "ssh: [not: a map\n")

	_, err := LoadConfig(path, file.NewFileService())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse configuration file")
}

// TestLoadConfig_RejectsEmptyUser verifies validation of configurations no
// operation could run with.
func TestLoadConfig_RejectsEmptyUser(t *testing.T) {
	path := writeConfigFile(t, `
ssh:
  user: ""
`)

	_, err := LoadConfig(path, file.NewFileService())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ssh.user")
}

// TestLoadConfig_RejectsBadPort verifies the port range check.
func TestLoadConfig_RejectsBadPort(t *testing.T) {
	path := writeConfigFile(t, `
ssh:
  port: 70000
`)

	_, err := LoadConfig(path, file.NewFileService())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
