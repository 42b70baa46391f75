// internal/scenario/harness_test.go
package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
	"github.com/xkilldash9x/steadyhand/internal/browser/session"
	"github.com/xkilldash9x/steadyhand/internal/logpipe"
	"github.com/xkilldash9x/steadyhand/internal/mocks"
	"github.com/xkilldash9x/steadyhand/internal/report"
)

var errNoService = errors.New("driver service not installed")

// directLauncher hands out one fake driver per launch and never has a service.
type directLauncher struct {
	mu      sync.Mutex
	drivers []*mocks.FakeDriver
	prepare func(*mocks.FakeDriver)
}

func (l *directLauncher) StartService(context.Context, browser.Kind, capabilities.Set) (session.DriverService, error) {
	return nil, errNoService
}

func (l *directLauncher) LaunchWithService(context.Context, session.DriverService, capabilities.Set) (browser.Driver, error) {
	return nil, errNoService
}

func (l *directLauncher) LaunchDirect(_ context.Context, caps capabilities.Set) (browser.Driver, error) {
	drv := mocks.NewFakeDriver(caps.Kind)
	if l.prepare != nil {
		l.prepare(drv)
	}
	l.mu.Lock()
	l.drivers = append(l.drivers, drv)
	l.mu.Unlock()
	return drv, nil
}

func (l *directLauncher) Connect(ctx context.Context, _ string, caps capabilities.Set) (browser.Driver, error) {
	return l.LaunchDirect(ctx, caps)
}

func (l *directLauncher) last() *mocks.FakeDriver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drivers[len(l.drivers)-1]
}

type harnessFixture struct {
	harness  *Harness
	launcher *directLauncher
	sink     *report.MemorySink
	logger   *zap.Logger
	logs     *observer.ObservedLogs
	shots    string
	home     string
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newHarnessFixture(t *testing.T, prepare func(*mocks.FakeDriver)) *harnessFixture {
	t.Helper()
	buf := logpipe.NewBuffer(zapcore.InfoLevel)
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(zapcore.NewTee(buf, obsCore))
	sink := &report.MemorySink{}
	pipeline := logpipe.New(logger, buf, sink, []string{"chrome", "msedge"})

	home := t.TempDir()
	launcher := &directLauncher{prepare: prepare}
	env := capabilities.Environment{GOOS: "linux", HomeDir: home}
	worker := session.NewManager(launcher, env, pipeline, logger).NewWorker()
	shots := filepath.Join(t.TempDir(), "target", "screenshots")

	h := New(worker, pipeline, sink, logger, Options{
		Kind:          browser.Chrome,
		ScreenshotDir: shots,
		Now:           func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { h.AfterAll(context.Background()) })
	return &harnessFixture{harness: h, launcher: launcher, sink: sink, logger: logger, logs: logs, shots: shots, home: home}
}

func TestHarness_FailedScenarioCapturesArtifacts(t *testing.T) {
	f := newHarnessFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.harness.Before(ctx, "login"))
	require.NotNil(t, f.harness.Actions())
	drv := f.launcher.last()
	drv.EmitConsole(browser.ConsoleEntry{Timestamp: fixedNow, Level: browser.LevelError, Text: "Uncaught TypeError"})
	f.logger.Info("Step: submit form.")

	f.harness.After(ctx, true)

	name := "login-20260304-050607"
	png, err := os.ReadFile(filepath.Join(f.shots, name+".png"))
	require.NoError(t, err, "Screenshot is written under the screenshot directory")
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))

	shots := f.sink.Named(name)
	require.Len(t, shots, 1)
	assert.Equal(t, "image/png", shots[0].ContentType)
	assert.Equal(t, "login", shots[0].Scenario)

	logs := f.sink.Named(logpipe.AttachmentName)
	require.Len(t, logs, 1)
	assert.Contains(t, string(logs[0].Body), "Uncaught TypeError")
	assert.Contains(t, string(logs[0].Body), "Step: submit form.")

	assert.Equal(t, 1, drv.QuitCount, "The session is released after capture")
	assert.Nil(t, f.harness.Actions())
}

func TestHarness_PassedScenarioOnlyReleases(t *testing.T) {
	f := newHarnessFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.harness.Before(ctx, "logout"))
	drv := f.launcher.last()
	f.harness.After(ctx, false)

	assert.Empty(t, f.sink.Attachments())
	assert.Zero(t, drv.CountCalls("screenshot"))
	assert.Equal(t, 1, drv.QuitCount)
	_, err := os.Stat(f.shots)
	assert.True(t, os.IsNotExist(err))
}

func TestHarness_SecondCaptureAttachesEmptyLog(t *testing.T) {
	f := newHarnessFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.harness.Before(ctx, "checkout"))
	f.logger.Info("Something happened.")

	require.NoError(t, f.harness.CaptureFailureArtifacts(ctx, "first"))
	require.NoError(t, f.harness.CaptureFailureArtifacts(ctx, "second"))

	logs := f.sink.Named(logpipe.AttachmentName)
	require.Len(t, logs, 2)
	assert.NotEmpty(t, logs[0].Body)
	assert.Empty(t, logs[1].Body)
}

func TestHarness_CaptureWithoutSession(t *testing.T) {
	f := newHarnessFixture(t, nil)
	err := f.harness.CaptureFailureArtifacts(context.Background(), "orphan")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Len(t, f.sink.Named(logpipe.AttachmentName), 1, "The log is flushed even without a browser")
}

func TestHarness_ScreenshotFailureIsReported(t *testing.T) {
	f := newHarnessFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.harness.Before(ctx, "s"))

	// A file where the directory should be makes MkdirAll fail.
	require.NoError(t, os.MkdirAll(filepath.Dir(f.shots), 0o755))
	require.NoError(t, os.WriteFile(f.shots, []byte("x"), 0o644))

	err := f.harness.CaptureFailureArtifacts(ctx, "broken")
	assert.ErrorContains(t, err, "screenshot directory")
	assert.Len(t, f.sink.Named("broken"), 1, "The attachment does not depend on the file copy")
}

func TestHarness_PrintBrowserLogs(t *testing.T) {
	f := newHarnessFixture(t, nil)
	ctx := context.Background()
	assert.Nil(t, f.harness.PrintBrowserLogs(ctx))

	require.NoError(t, f.harness.Before(ctx, "s"))
	f.launcher.last().EmitConsole(browser.ConsoleEntry{Timestamp: fixedNow, Level: browser.LevelWarn, Text: "careful"})

	lines := f.harness.PrintBrowserLogs(ctx)
	require.Len(t, lines, 1)
	assert.Equal(t, "2026-03-04 05:06:07.000 [browser] WARNING careful", lines[0])
}

func TestHarness_BeforeFailsOnUnsupportedKind(t *testing.T) {
	f := newHarnessFixture(t, nil)
	f.harness.opts.Kind = browser.Kind("safari")
	err := f.harness.Before(context.Background(), "s")
	assert.ErrorIs(t, err, browser.ErrUnsupportedBrowserKind)
	assert.Nil(t, f.harness.Actions())
}

func TestHarness_DownloadDirectory(t *testing.T) {
	f := newHarnessFixture(t, nil)
	assert.Equal(t, filepath.Join(f.home, "downloads"), f.harness.DownloadDirectory())
}

type stubCapture struct{ calls int }

func (s *stubCapture) Summary() string {
	s.calls++
	return "2026-03-04 05:06:07.000 GET https://app.test/ 200 3ms"
}

func TestHarness_AttachesNetworkCapture(t *testing.T) {
	f := newHarnessFixture(t, nil)
	capture := &stubCapture{}
	f.harness.opts.Network = capture
	ctx := context.Background()
	require.NoError(t, f.harness.Before(ctx, "search"))

	f.harness.After(ctx, true)

	net := f.sink.Named("network")
	require.Len(t, net, 1)
	assert.Equal(t, "text/plain", net[0].ContentType)
	assert.Contains(t, string(net[0].Body), "GET https://app.test/ 200")
	assert.Equal(t, 1, capture.calls)
}
