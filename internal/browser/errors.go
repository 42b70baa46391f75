// internal/browser/errors.go
package browser

import "errors"

// Errors that make the requested session unusable. Callers match them with errors.Is.
var (
	ErrInvalidRemoteURL       = errors.New("invalid remote url")
	ErrUnsupportedBrowserKind = errors.New("unsupported browser kind")
	ErrRemoteConnection       = errors.New("could not connect to remote endpoint")
	ErrLaunchFailure          = errors.New("browser launch failed")
)

// Errors reported by drivers for operations they cannot serve.
var (
	ErrElementNotFound                = errors.New("element not found")
	ErrConsoleLogsUnsupported         = errors.New("console log polling not supported")
	ErrConsoleSubscriptionUnsupported = errors.New("console subscription not supported")
	ErrNoDialog                       = errors.New("no dialog is open")
	ErrSessionClosed                  = errors.New("session closed")
)
