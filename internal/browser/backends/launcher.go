// internal/browser/backends/launcher.go
package backends

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
	"github.com/xkilldash9x/steadyhand/internal/browser/cdp"
	"github.com/xkilldash9x/steadyhand/internal/browser/pw"
	"github.com/xkilldash9x/steadyhand/internal/browser/session"
)

// Launcher is the production session.Launcher. Local sessions go through the
// Playwright driver service when one is installed; Chromium browsers fall
// back to a DevTools launch and Firefox to a privately installed driver.
// Remote Chromium endpoints speak DevTools, remote Firefox endpoints are
// Playwright browser servers.
type Launcher struct {
	logger    *zap.Logger
	driverLog string
}

var _ session.Launcher = (*Launcher)(nil)

// New returns a Launcher. driverLog, when set, is passed to locally launched
// Chromium browsers as their log file.
func New(logger *zap.Logger, driverLog string) *Launcher {
	return &Launcher{logger: logger.Named("launcher"), driverLog: driverLog}
}

func (l *Launcher) StartService(ctx context.Context, kind browser.Kind, caps capabilities.Set) (session.DriverService, error) {
	svc, err := pw.StartService(ctx, caps.DriverDir, l.logger.With(zap.String("browser", kind.String())))
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (l *Launcher) LaunchWithService(ctx context.Context, svc session.DriverService, caps capabilities.Set) (browser.Driver, error) {
	s, ok := svc.(*pw.Service)
	if !ok {
		return nil, fmt.Errorf("unexpected driver service %T", svc)
	}
	d, err := pw.Launch(ctx, s, caps, l.logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (l *Launcher) LaunchDirect(ctx context.Context, caps capabilities.Set) (browser.Driver, error) {
	if caps.Kind.ChromiumFamily() {
		d, err := cdp.Launch(ctx, caps, l.logger, l.driverLog)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	d, err := pw.LaunchPrivate(ctx, caps, l.logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (l *Launcher) Connect(ctx context.Context, remoteURL string, caps capabilities.Set) (browser.Driver, error) {
	if caps.Kind.ChromiumFamily() {
		d, err := cdp.Connect(ctx, remoteURL, caps, l.logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	d, err := pw.Connect(ctx, remoteURL, caps, l.logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}
