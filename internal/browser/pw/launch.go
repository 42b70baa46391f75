// internal/browser/pw/launch.go
package pw

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

func browserType(p *playwright.Playwright, kind browser.Kind) playwright.BrowserType {
	if kind == browser.Firefox {
		return p.Firefox
	}
	return p.Chromium
}

// Launch starts a browser through a running driver service. Chrome and Edge
// use their installed channels; Firefox uses the driver's own build.
func Launch(ctx context.Context, svc *Service, caps capabilities.Set, logger *zap.Logger) (*Driver, error) {
	p, err := svc.instance()
	if err != nil {
		return nil, err
	}
	logger = logger.Named("playwright").With(zap.String("browser", caps.Kind.String()))

	b, err := await(ctx, func() (playwright.Browser, error) {
		return browserType(p, caps.Kind).Launch(launchOptions(caps))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", caps.Kind, err)
	}
	d, err := newDriver(ctx, caps.Kind, b, nil, contextOptions(caps), logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return d, nil
}

// LaunchPrivate installs a driver and Firefox build for this browser alone and
// launches it. The driver stops when the browser quits.
func LaunchPrivate(ctx context.Context, caps capabilities.Set, logger *zap.Logger) (*Driver, error) {
	if caps.Kind != browser.Firefox {
		return nil, fmt.Errorf("%w: private launches are Firefox only", browser.ErrUnsupportedBrowserKind)
	}
	logger = logger.Named("playwright").With(zap.String("browser", caps.Kind.String()))

	p, err := runPrivate(ctx, true, logger)
	if err != nil {
		return nil, err
	}
	b, err := await(ctx, func() (playwright.Browser, error) {
		return p.Firefox.Launch(launchOptions(caps))
	})
	if err != nil {
		_ = p.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", caps.Kind, err)
	}
	d, err := newDriver(ctx, caps.Kind, b, p, contextOptions(caps), logger)
	if err != nil {
		_ = b.Close()
		_ = p.Stop()
		return nil, err
	}
	return d, nil
}

// Connect attaches to a Playwright browser server listening on a ws endpoint.
func Connect(ctx context.Context, wsEndpoint string, caps capabilities.Set, logger *zap.Logger) (*Driver, error) {
	logger = logger.Named("playwright").With(zap.String("endpoint", wsEndpoint))

	p, err := runPrivate(ctx, false, logger)
	if err != nil {
		return nil, err
	}
	b, err := await(ctx, func() (playwright.Browser, error) {
		return browserType(p, caps.Kind).Connect(wsEndpoint)
	})
	if err != nil {
		_ = p.Stop()
		return nil, err
	}
	d, err := newDriver(ctx, caps.Kind, b, p, contextOptions(caps), logger)
	if err != nil {
		_ = b.Close()
		_ = p.Stop()
		return nil, err
	}
	return d, nil
}
