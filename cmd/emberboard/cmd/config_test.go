package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPathHonorsXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cmd := newConfigPathCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, filepath.Join(xdg, "emberboard", "config.yaml")+"\n", buf.String())
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	dataDir := t.TempDir()

	out, err := runCmd(t, dataDir, "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "data_dir:")
	assert.Contains(t, out, "locales:")
	assert.Contains(t, out, "synonyms:")
}

func TestConfigInitCreatesUserConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	out, err := runCmd(t, t.TempDir(), "config", "init")

	require.NoError(t, err)
	assert.Contains(t, out, "created")
	_, statErr := os.Stat(filepath.Join(xdg, "emberboard", "config.yaml"))
	assert.NoError(t, statErr)
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	_, err := runCmd(t, t.TempDir(), "config", "init")
	require.NoError(t, err)

	out, err := runCmd(t, t.TempDir(), "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}
