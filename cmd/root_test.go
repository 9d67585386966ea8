package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulsebridge/internal/buildinfo"
	"github.com/tphakala/pulsebridge/internal/conf"
)

// run executes the root command with args against the fake backend. Tests
// share viper's global state and must not run in parallel.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	settings := &conf.Settings{}
	root := RootCommand(settings, buildinfo.NewContext("1.2.3", "2026-10-01"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--backend", "fake", "--log-level", "error"}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestDevicesCommand(t *testing.T) {
	out, err := run(t, "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "fake_output")
	assert.Contains(t, out, "fake_input")
}

func TestDevicesCommandYAML(t *testing.T) {
	out, err := run(t, "devices", "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "host_api: fake")
}

func TestConfigShowReflectsFlags(t *testing.T) {
	out, err := run(t, "--server", "tcp:localhost:4713", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "type: fake")
	assert.Contains(t, out, "server: tcp:localhost:4713")
}

func TestConfigFileIsOverriddenByFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  type: pulse\n  server: unix:/run/pulse/native\n"), 0o600))

	out, err := run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "type: fake")
	assert.Contains(t, out, "server: unix:/run/pulse/native")
}

func TestConfigWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	_, err := run(t, "config", "write", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend:")
}

func TestUnknownBackendFails(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := RootCommand(&conf.Settings{}, buildinfo.NewContext("", ""))
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--backend", "jack", "devices"})
	assert.Error(t, root.ExecuteContext(t.Context()))
}
