// internal/browser/driver.go
package browser

import (
	"context"
	"time"
)

// Element is a handle to a DOM node owned by a Driver. Handles are only
// meaningful to the driver that produced them.
type Element interface {
	// Description is a short human readable label, usually the selector.
	Description() string
}

// ScriptRunner evaluates a script body against the current page. The body is
// the inside of a function and reads its inputs from arguments[i]; Element
// values in args arrive in the page as the DOM nodes they refer to. When
// result is non-nil the return value is decoded into it.
type ScriptRunner interface {
	ExecuteScript(ctx context.Context, body string, result any, args ...any) error
}

// Pointer is the set of native input primitives the action engine escalates from.
type Pointer interface {
	Hover(ctx context.Context, el Element) error
	Click(ctx context.Context, el Element) error
	DoubleClick(ctx context.Context, el Element) error
	ContextClick(ctx context.Context, el Element) error
	// DragAndDrop presses on src, moves onto dst, waits for pause and releases.
	DragAndDrop(ctx context.Context, src, dst Element, pause time.Duration) error
}

// Keyboard covers text entry.
type Keyboard interface {
	TypeText(ctx context.Context, el Element, text string) error
	// PasteShortcut sends the platform paste chord to the focused element.
	PasteShortcut(ctx context.Context, el Element) error
}

// Dialogs exposes blocking alert/confirm/prompt state.
type Dialogs interface {
	DialogOpen() bool
	// HandleDialog accepts or dismisses the open dialog and returns its message.
	HandleDialog(ctx context.Context, accept bool) (string, error)
}

// Subscription is a live console subscription. Close is idempotent.
type Subscription interface {
	Close() error
}

// Console exposes the two log capture channels a driver may offer.
type Console interface {
	// ConsolePolling reports whether ConsoleLogs is served by this driver.
	ConsolePolling() bool
	// ConsoleLogs drains the buffered console entries.
	ConsoleLogs(ctx context.Context) ([]ConsoleEntry, error)
	// SubscribeConsole delivers entries to fn as they arrive.
	SubscribeConsole(fn func(ConsoleEntry)) (Subscription, error)
}

// Driver is one live browser-control channel.
type Driver interface {
	ScriptRunner
	Pointer
	Keyboard
	Dialogs
	Console

	Kind() Kind
	// EngineName is the engine identifier the browser reports about itself,
	// e.g. "chrome", "msedge" or "firefox".
	EngineName() string

	SetTimeouts(t Timeouts)
	Timeouts() Timeouts

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Find(ctx context.Context, selector string) (Element, error)
	Displayed(ctx context.Context, el Element) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
	WindowSize(ctx context.Context) (width, height int, err error)

	Quit(ctx context.Context) error
}
