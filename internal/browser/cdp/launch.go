// internal/browser/cdp/launch.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"os"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

var errNoEdgeBinary = errors.New("no Microsoft Edge installation found")

// Launch starts a local Chromium-family browser and opens one tab in it.
// driverLog, when set, receives the browser's own log output.
func Launch(ctx context.Context, caps capabilities.Set, logger *zap.Logger, driverLog string) (*Driver, error) {
	if !caps.Kind.ChromiumFamily() {
		return nil, fmt.Errorf("%w: %s is not a Chromium browser", browser.ErrUnsupportedBrowserKind, caps.Kind)
	}
	if caps.Kind == browser.Edge && caps.BinaryPath == "" {
		return nil, errNoEdgeBinary
	}
	logger = logger.Named("cdp")

	profile := caps.UserDataDir
	var tempDir string
	if profile == "" {
		dir, err := os.MkdirTemp("", "steadyhand-profile-")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary profile: %w", err)
		}
		profile, tempDir = dir, dir
	}
	if seeded, err := writePreferences(profile, caps.Prefs()); err != nil {
		logger.Warn("Could not seed browser preferences.", zap.Error(err))
	} else if seeded {
		logger.Debug("Browser preferences seeded.", zap.String("profile", profile))
	}

	// The browser outlives the acquiring call, so it must not inherit its cancellation.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), ExecOptions(caps, profile, driverLog)...)
	d, err := start(ctx, allocCtx, allocCancel, caps, logger)
	if err != nil {
		if tempDir != "" {
			_ = os.RemoveAll(tempDir)
		}
		return nil, err
	}
	d.tempDir = tempDir
	return d, nil
}

// Connect attaches to a browser already listening for DevTools connections.
// remoteURL is either the http endpoint serving /json/version or the
// browser's ws:// debugger URL.
func Connect(ctx context.Context, remoteURL string, caps capabilities.Set, logger *zap.Logger) (*Driver, error) {
	if !caps.Kind.ChromiumFamily() {
		return nil, fmt.Errorf("%w: %s is not a Chromium browser", browser.ErrUnsupportedBrowserKind, caps.Kind)
	}
	logger = logger.Named("cdp").With(zap.String("endpoint", remoteURL))
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), remoteURL)
	return start(ctx, allocCtx, allocCancel, caps, logger)
}

func start(ctx, allocCtx context.Context, allocCancel context.CancelFunc, caps capabilities.Set, logger *zap.Logger) (*Driver, error) {
	sugar := logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	d := newDriver(caps.Kind, tabCtx, tabCancel, allocCancel, logger)

	var userAgent string
	setup := []chromedp.Action{
		runtime.Enable(),
		cdplog.Enable(),
		page.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			_, _, _, userAgent, _, err = cdpbrowser.GetVersion().Do(ctx)
			return err
		}),
	}
	if caps.AcceptInsecureCerts {
		setup = append(setup, security.SetIgnoreCertificateErrors(true))
	}
	if caps.DownloadDir != "" {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			c := chromedp.FromContext(ctx)
			return cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
				WithDownloadPath(caps.DownloadDir).
				Do(cdp.WithExecutor(ctx, c.Browser))
		}))
	}

	// The first Run allocates the browser and must use the tab context
	// itself; a derived deadline would tear the browser down with it.
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx, setup...) }()
	select {
	case err := <-done:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		<-done
		return nil, ctx.Err()
	}

	d.engine = engineName(caps.Kind, userAgent)
	logger.Debug("Browser started.", zap.String("engine", d.engine), zap.String("user_agent", userAgent))
	return d, nil
}
