// internal/browser/session/launcher.go
package session

import (
	"context"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

// DriverService is a local helper process that browsers are launched through.
type DriverService interface {
	Running() bool
	Stop() error
}

// Launcher starts and connects browsers. The default implementation lives in
// the backends package; tests substitute their own.
type Launcher interface {
	// StartService starts the local driver service for kind.
	StartService(ctx context.Context, kind browser.Kind, caps capabilities.Set) (DriverService, error)
	// LaunchWithService starts a browser through a running service.
	LaunchWithService(ctx context.Context, svc DriverService, caps capabilities.Set) (browser.Driver, error)
	// LaunchDirect starts a browser without a service.
	LaunchDirect(ctx context.Context, caps capabilities.Set) (browser.Driver, error)
	// Connect attaches to a browser behind a remote endpoint.
	Connect(ctx context.Context, remoteURL string, caps capabilities.Set) (browser.Driver, error)
}

// ConsoleRouter receives console records from sessions whose driver cannot be
// polled.
type ConsoleRouter interface {
	Route(entry browser.ConsoleEntry)
}
