// internal/scenario/helpers_test.go
package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/steadyhand/internal/mocks"
)

func TestRobustGet(t *testing.T) {
	ctx := context.Background()

	t.Run("retries once and probes ready state", func(t *testing.T) {
		var attempts int
		f := newHarnessFixture(t, func(d *mocks.FakeDriver) {
			d.OnNavigate = func(string) error {
				attempts++
				if attempts == 1 {
					return errors.New("net::ERR_CONNECTION_RESET")
				}
				return nil
			}
			d.OnScript = func(body string, _ []any) (any, error) {
				if strings.Contains(body, "readyState") {
					return "interactive", nil
				}
				return nil, nil
			}
		})
		require.NoError(t, f.harness.Before(ctx, "s"))

		require.NoError(t, f.harness.RobustGet(ctx, "https://the-internet.test/login"))
		drv := f.launcher.last()
		assert.Equal(t, 2, drv.CountCalls("navigate"))
		assert.Equal(t, 1, f.logs.FilterMessage("Navigation failed, retrying once.").Len())
		assert.Contains(t, drv.ScriptLog(), `return document.readyState;`)
	})

	t.Run("a failed retry is absorbed", func(t *testing.T) {
		f := newHarnessFixture(t, func(d *mocks.FakeDriver) {
			d.OnNavigate = func(string) error { return errors.New("timeout") }
		})
		require.NoError(t, f.harness.Before(ctx, "s"))
		assert.NoError(t, f.harness.RobustGet(ctx, "https://slow.test"))
		assert.Equal(t, 2, f.launcher.last().CountCalls("navigate"))
	})

	t.Run("probe failures are reported", func(t *testing.T) {
		f := newHarnessFixture(t, func(d *mocks.FakeDriver) {
			d.OnScript = func(string, []any) (any, error) { return nil, errors.New("no such window") }
		})
		require.NoError(t, f.harness.Before(ctx, "s"))
		assert.ErrorContains(t, f.harness.RobustGet(ctx, "https://x.test"), "no such window")
	})

	t.Run("requires a session", func(t *testing.T) {
		f := newHarnessFixture(t, nil)
		assert.ErrorIs(t, f.harness.RobustGet(ctx, "https://x.test"), ErrNoSession)
	})
}

func TestProbes(t *testing.T) {
	ctx := context.Background()
	f := newHarnessFixture(t, func(d *mocks.FakeDriver) {
		d.OnScript = func(body string, _ []any) (any, error) {
			switch {
			case strings.Contains(body, "userAgent"):
				return "Mozilla/5.0 HeadlessChrome/126.0", nil
			case strings.Contains(body, "language"):
				return "de-DE", nil
			}
			return nil, nil
		}
	})
	require.NoError(t, f.harness.Before(ctx, "s"))

	ua, err := f.harness.UserAgent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0 HeadlessChrome/126.0", ua)

	lang, err := f.harness.BrowserLanguage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "de-DE", lang)
}

func TestWaitForFile(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	t.Run("file already present", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b"), 0o644))
		path, err := waitForFile(ctx, dir, "report.csv", time.Second)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "report.csv"), path)
	})

	t.Run("file arrives after a partial download", func(t *testing.T) {
		dir := t.TempDir()
		partial := filepath.Join(dir, "report.csv.crdownload")
		require.NoError(t, os.WriteFile(partial, []byte("a"), 0o644))

		done := make(chan struct{})
		go func() {
			defer close(done)
			time.Sleep(30 * time.Millisecond)
			_ = os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b"), 0o644)
			time.Sleep(30 * time.Millisecond)
			_ = os.Remove(partial)
		}()

		path, err := waitForFile(ctx, dir, "report.csv", 5*time.Second)
		<-done
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "report.csv"), path)
		_, statErr := os.Stat(partial)
		assert.True(t, os.IsNotExist(statErr), "The wait only ends once the partial file is gone")
	})

	t.Run("times out", func(t *testing.T) {
		_, err := waitForFile(ctx, t.TempDir(), "never.pdf", 50*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("creates the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "downloads")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := waitForFile(cctx, dir, "x", time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	})
}
