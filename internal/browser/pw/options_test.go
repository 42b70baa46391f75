// internal/browser/pw/options_test.go
package pw

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

func build(t *testing.T, kind browser.Kind, mutate func(*capabilities.Environment)) capabilities.Set {
	t.Helper()
	env := capabilities.Environment{GOOS: "linux", HomeDir: "/home/tester"}
	if mutate != nil {
		mutate(&env)
	}
	set, err := capabilities.Build(kind, browser.Local, env)
	require.NoError(t, err)
	return set
}

func TestLaunchOptions(t *testing.T) {
	t.Run("chrome launches its installed channel", func(t *testing.T) {
		opts := launchOptions(build(t, browser.Chrome, nil))
		require.NotNil(t, opts.Channel)
		assert.Equal(t, "chrome", *opts.Channel)
		assert.Nil(t, opts.ExecutablePath)
		assert.True(t, *opts.Headless)
		assert.Contains(t, opts.Args, "--no-sandbox")
		assert.NotContains(t, opts.Args, "--headless=new", "Headless is an option, not a switch")
		assert.Nil(t, opts.FirefoxUserPrefs)
	})

	t.Run("edge prefers a discovered binary over the channel", func(t *testing.T) {
		opts := launchOptions(build(t, browser.Edge, func(env *capabilities.Environment) {
			env.EdgeBinary = "/opt/microsoft/msedge/msedge"
		}))
		assert.Nil(t, opts.Channel)
		require.NotNil(t, opts.ExecutablePath)
		assert.Equal(t, "/opt/microsoft/msedge/msedge", *opts.ExecutablePath)

		opts = launchOptions(build(t, browser.Edge, nil))
		require.NotNil(t, opts.Channel)
		assert.Equal(t, "msedge", *opts.Channel)
	})

	t.Run("firefox carries preferences", func(t *testing.T) {
		opts := launchOptions(build(t, browser.Firefox, nil))
		assert.Nil(t, opts.Channel)
		assert.NotContains(t, opts.Args, "-headless")
		assert.Equal(t, true, opts.FirefoxUserPrefs["pdfjs.disabled"])
		require.NotNil(t, opts.DownloadsPath)
		assert.Equal(t, "/home/tester/downloads", *opts.DownloadsPath)
	})

	t.Run("proxy", func(t *testing.T) {
		opts := launchOptions(build(t, browser.Firefox, func(env *capabilities.Environment) {
			env.ProxyHost = "corp-proxy"
			env.ProxyPort = "3128"
		}))
		require.NotNil(t, opts.Proxy)
		assert.Equal(t, "http://corp-proxy:3128", opts.Proxy.Server)
	})

	t.Run("context accepts downloads and insecure certificates", func(t *testing.T) {
		opts := contextOptions(build(t, browser.Chrome, nil))
		assert.True(t, *opts.AcceptDownloads)
		assert.True(t, *opts.IgnoreHttpsErrors)
	})
}

func TestEngineName(t *testing.T) {
	assert.Equal(t, "chrome", engineName(browser.Chrome))
	assert.Equal(t, "msedge", engineName(browser.Edge))
	assert.Equal(t, "firefox", engineName(browser.Firefox))
}

func TestWrapScript(t *testing.T) {
	got := wrapScript("return arguments[0] + 1;")
	assert.Equal(t, "(args) => (function () {\nreturn arguments[0] + 1;\n}).apply(null, args)", got)
}

func TestAwait(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("returns the call result", func(t *testing.T) {
		v, err := await(context.Background(), func() (int, error) { return 7, nil })
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("abandons the call when the context ends", func(t *testing.T) {
		release := make(chan struct{})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := await(ctx, func() (int, error) { <-release; return 0, nil })
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		close(release)
	})
}

func TestStartService_RequiresDriverDirectory(t *testing.T) {
	_, err := StartService(context.Background(), "", zap.NewNop())
	assert.ErrorIs(t, err, errNoDriverDir)

	_, err = StartService(context.Background(), t.TempDir()+"/missing", zap.NewNop())
	assert.Error(t, err)
}
