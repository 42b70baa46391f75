// internal/scenario/harness.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/actions"
	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/session"
	"github.com/xkilldash9x/steadyhand/internal/logpipe"
	"github.com/xkilldash9x/steadyhand/internal/report"
)

// DefaultScreenshotDir is where failure screenshots are written.
const DefaultScreenshotDir = "target/screenshots"

// screenshotStamp is appended to the scenario name for failure screenshots.
const screenshotStamp = "20060102-150405"

const networkAttachment = "network"

// ErrNoSession is returned by helpers called outside Before/After.
var ErrNoSession = errors.New("no browser session bound to this scenario")

// NetworkCapture summarizes the traffic seen since the last call.
type NetworkCapture interface {
	Summary() string
}

// Options selects the browser for every scenario run by a Harness.
type Options struct {
	Kind          browser.Kind
	RemoteURL     string
	ScreenshotDir string
	// ActionOptions are applied to the action engine of each session.
	ActionOptions []actions.Option
	// Network, when set, is attached to the report of a failed scenario.
	Network NetworkCapture
	// Now defaults to time.Now.
	Now func() time.Time
}

// Harness wires one worker's session, the log pipeline and the report sink
// into scenario hooks.
type Harness struct {
	worker   *session.Worker
	pipeline *logpipe.Pipeline
	sink     report.Sink
	logger   *zap.Logger
	opts     Options

	mu       sync.Mutex
	scenario string
	engine   *actions.Engine
}

func New(worker *session.Worker, pipeline *logpipe.Pipeline, sink report.Sink, logger *zap.Logger, opts Options) *Harness {
	if opts.ScreenshotDir == "" {
		opts.ScreenshotDir = DefaultScreenshotDir
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Harness{
		worker:   worker,
		pipeline: pipeline,
		sink:     sink,
		logger:   logger.Named("scenario").With(zap.String("worker", worker.ID())),
		opts:     opts,
	}
}

// -- Hooks --

// Before acquires the scenario's browser session.
func (h *Harness) Before(ctx context.Context, scenario string) error {
	h.logger.Debug("Before scenario.", zap.String("scenario", scenario))
	sess, err := h.worker.Acquire(ctx, h.opts.Kind, h.opts.RemoteURL)
	if err != nil {
		return fmt.Errorf("scenario %q: %w", scenario, err)
	}

	opts := append([]actions.Option{
		actions.WithHeadless(sess.Caps.Headless),
		actions.WithClipboard(actions.SystemClipboard{}),
	}, h.opts.ActionOptions...)

	h.mu.Lock()
	h.scenario = scenario
	h.engine = actions.New(sess.Driver, h.logger, opts...)
	h.mu.Unlock()
	return nil
}

// After captures failure artifacts for a failed scenario and always releases
// the session.
func (h *Harness) After(ctx context.Context, failed bool) {
	h.mu.Lock()
	scenario := h.scenario
	h.mu.Unlock()
	h.logger.Debug("After scenario.", zap.String("scenario", scenario), zap.Bool("failed", failed))

	if failed {
		name := scenario + "-" + h.opts.Now().Format(screenshotStamp)
		if err := h.CaptureFailureArtifacts(ctx, name); err != nil {
			h.logger.Error("Failed to capture failure artifacts.", zap.String("scenario", scenario), zap.Error(err))
		}
	}

	h.worker.Release(ctx)
	h.mu.Lock()
	h.engine = nil
	h.mu.Unlock()
}

// AfterAll releases the session and the driver service.
func (h *Harness) AfterAll(ctx context.Context) {
	h.worker.ReleaseAll(ctx)
}

// -- Diagnostics --

func (h *Harness) current() (*session.Session, error) {
	sess, ok := h.worker.Current()
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

// PrintBrowserLogs polls the console buffer into the application log.
func (h *Harness) PrintBrowserLogs(ctx context.Context) []string {
	sess, err := h.current()
	if err != nil {
		h.logger.Debug("No session to read browser logs from.")
		return nil
	}
	return h.pipeline.Poll(ctx, sess.Driver, sess.Mode)
}

// CaptureFailureArtifacts flushes the merged log to the report, then saves a
// screenshot under the screenshot directory and attaches it.
func (h *Harness) CaptureFailureArtifacts(ctx context.Context, name string) error {
	h.mu.Lock()
	scenario := h.scenario
	h.mu.Unlock()
	if scenario == "" {
		scenario = name
	}

	h.PrintBrowserLogs(ctx)
	var errs []error
	if _, err := h.pipeline.Flush(ctx, scenario); err != nil {
		errs = append(errs, err)
	}
	if h.opts.Network != nil && h.sink != nil {
		if err := h.sink.Attach(ctx, scenario, networkAttachment, "text/plain", []byte(h.opts.Network.Summary())); err != nil {
			errs = append(errs, fmt.Errorf("failed to attach network capture: %w", err))
		}
	}

	sess, err := h.current()
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	png, err := sess.Driver.Screenshot(ctx)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("failed to take screenshot: %w", err))...)
	}

	path := filepath.Join(h.opts.ScreenshotDir, name+".png")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		errs = append(errs, fmt.Errorf("failed to create screenshot directory: %w", err))
	} else if err := os.WriteFile(path, png, 0o644); err != nil {
		errs = append(errs, fmt.Errorf("failed to save screenshot: %w", err))
	} else {
		h.logger.Debug("Screenshot saved.", zap.String("path", path))
	}

	if h.sink != nil {
		if err := h.sink.Attach(ctx, scenario, name, "image/png", png); err != nil {
			errs = append(errs, fmt.Errorf("failed to attach screenshot: %w", err))
		}
	}
	return errors.Join(errs...)
}

// -- Accessors --

// DownloadDirectory is where the browser's downloads appear for this process.
func (h *Harness) DownloadDirectory() string { return h.worker.DownloadDirectory() }

// Actions is the resilient action engine for the current session, or nil
// between scenarios.
func (h *Harness) Actions() *actions.Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine
}
