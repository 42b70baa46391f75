// cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/steadyhand/internal/observability"
)

// execute runs a fresh command tree from an empty working directory so no
// stray config or .env file is picked up.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("STEADYHAND_LOGGER_LEVEL", "error")
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "steadyhand version dev\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "steadyhand version dev\n", out)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	t.Setenv("STEADYHAND_BROWSER_KIND", "safari")
	_, err := execute(t, "caps")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.kind")
}

func TestRootCmd_LegacyEnvironmentNames(t *testing.T) {
	t.Setenv("BROWSER", "edge")
	t.Setenv("HTTP_PROXY_HOST", "proxy.corp.test")
	t.Setenv("HTTP_PROXY_PORT", "3128")

	out, err := execute(t, "caps", "--format", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "edge", got["kind"])
	assert.Equal(t, map[string]any{
		"http": "proxy.corp.test:3128",
		"ssl":  "proxy.corp.test:3128",
		"ftp":  "proxy.corp.test:3128",
	}, got["proxy"])
}

func TestRootCmd_ConfigFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("browser:\n  kind: firefox\n"), 0o644))
	envPath := filepath.Join(dir, "ci.env")
	require.NoError(t, os.WriteFile(envPath, []byte("MOZ_FIREFOX_BINARY=/opt/firefox/firefox\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("MOZ_FIREFOX_BINARY") })

	out, err := execute(t, "--config", cfgPath, "--env-file", envPath, "caps")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "firefox", got["kind"])
	assert.Equal(t, "/opt/firefox/firefox", got["binary_path"])
	assert.Equal(t, "eager", got["page_load_strategy"])
}

func TestRootCmd_MissingEnvFile(t *testing.T) {
	_, err := execute(t, "--env-file", "/nonexistent/steadyhand.env", "caps")
	assert.ErrorContains(t, err, "failed to load env file")
}

func TestCapsCmd(t *testing.T) {
	t.Run("remote chrome as json", func(t *testing.T) {
		out, err := execute(t, "caps", "--browser", "chrome", "--remote", "--format", "json")
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "remote", got["mode"])
		assert.Equal(t, "/home/seluser/Downloads", got["download_dir"])
		assert.Contains(t, got["args"], "--remote-allow-origins=*")
		_, hasDriverDir := got["driver_dir"]
		assert.False(t, hasDriverDir, "Remote sets carry no driver directory")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := execute(t, "caps", "--format", "toml")
		assert.ErrorContains(t, err, "unsupported format")
	})

	t.Run("unknown browser", func(t *testing.T) {
		_, err := execute(t, "caps", "--browser", "opera")
		assert.Error(t, err)
	})
}
