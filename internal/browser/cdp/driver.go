// internal/browser/cdp/driver.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"os"
	goruntime "runtime"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
)

const (
	findPollInterval = 100 * time.Millisecond
	dragSteps        = 5
)

// element is a page object resolved through the Runtime domain.
type element struct {
	selector string
	object   runtime.RemoteObjectID
}

func (e *element) Description() string { return e.selector }

// Driver controls one Chromium tab over the DevTools protocol.
type Driver struct {
	kind   browser.Kind
	engine string
	logger *zap.Logger

	ctx         context.Context // chromedp tab context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	tempDir     string

	mu        sync.Mutex
	timeouts  browser.Timeouts
	dialog    *page.EventJavascriptDialogOpening
	console   *browser.ConsoleHub
	closed    bool
	closeOnce sync.Once
}

var _ browser.Driver = (*Driver)(nil)

func newDriver(kind browser.Kind, tabCtx context.Context, cancel, allocCancel context.CancelFunc, logger *zap.Logger) *Driver {
	d := &Driver{
		kind:        kind,
		logger:      logger,
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		console:     browser.NewConsoleHub(browser.DefaultConsoleCapacity),
	}
	chromedp.ListenTarget(tabCtx, d.onEvent)
	return d
}

func (d *Driver) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		d.mu.Lock()
		d.dialog = e
		d.mu.Unlock()
	case *page.EventJavascriptDialogClosed:
		d.mu.Lock()
		d.dialog = nil
		d.mu.Unlock()
	case *runtime.EventConsoleAPICalled:
		d.console.Add(entryFromConsoleAPI(e))
	case *runtime.EventExceptionThrown:
		if entry, ok := entryFromException(e); ok {
			d.console.Add(entry)
		}
	default:
		if entry, ok := entryFromLogDomain(ev); ok {
			d.console.Add(entry)
		}
	}
}

// exec runs actions on the tab, bounded by ctx as well as the tab's own life.
func (d *Driver) exec(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return browser.ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(runCtx, actions...)
}

func (d *Driver) Kind() browser.Kind { return d.kind }
func (d *Driver) EngineName() string { return d.engine }

func (d *Driver) SetTimeouts(t browser.Timeouts) {
	d.mu.Lock()
	d.timeouts = t
	d.mu.Unlock()
}

func (d *Driver) Timeouts() browser.Timeouts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeouts
}

// -- Scripts --

func (d *Driver) callArguments(args []any) ([]*runtime.CallArgument, error) {
	out := make([]*runtime.CallArgument, 0, len(args))
	for i, a := range args {
		if el, ok := a.(*element); ok {
			out = append(out, &runtime.CallArgument{ObjectID: el.object})
			continue
		}
		if _, ok := a.(browser.Element); ok {
			return nil, fmt.Errorf("argument %d: element %T belongs to another driver", i, a)
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, &runtime.CallArgument{Value: raw})
	}
	return out, nil
}

func (d *Driver) callFunction(ctx context.Context, body string, args []*runtime.CallArgument, byValue bool) (*runtime.RemoteObject, error) {
	global, exc, err := runtime.Evaluate("globalThis").Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exceptionError(exc)
	}
	res, exc, err := runtime.CallFunctionOn("function () {\n" + body + "\n}").
		WithObjectID(global.ObjectID).
		WithArguments(args).
		WithReturnByValue(byValue).
		WithAwaitPromise(true).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exceptionError(exc)
	}
	return res, nil
}

func exceptionError(exc *runtime.ExceptionDetails) error {
	msg := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg = exc.Exception.Description
	}
	return fmt.Errorf("script exception: %s", msg)
}

func (d *Driver) ExecuteScript(ctx context.Context, body string, result any, args ...any) error {
	callArgs, err := d.callArguments(args)
	if err != nil {
		return err
	}
	return d.exec(ctx, d.Timeouts().Script, chromedp.ActionFunc(func(ctx context.Context) error {
		res, err := d.callFunction(ctx, body, callArgs, true)
		if err != nil {
			return err
		}
		if result == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(res.Value), result)
	}))
}

// -- Navigation --

func (d *Driver) Navigate(ctx context.Context, url string) error {
	err := d.exec(ctx, d.Timeouts().PageLoad, chromedp.Navigate(url))
	if err == nil || !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return err
	}
	// Eager loading: a parsed document is good enough even if subresources
	// are still arriving.
	var state string
	if serr := d.ExecuteScript(ctx, `return document.readyState;`, &state); serr == nil && state != "loading" {
		return nil
	}
	return fmt.Errorf("page load timed out: %w", err)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.exec(ctx, 0, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Find waits up to the implicit wait for selector to match.
func (d *Driver) Find(ctx context.Context, selector string) (browser.Element, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	expr := "document.querySelector(" + string(quoted) + ")"
	deadline := time.Now().Add(d.Timeouts().ImplicitWait)

	for {
		var obj *runtime.RemoteObject
		err := d.exec(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
			res, exc, err := runtime.Evaluate(expr).Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return exceptionError(exc)
			}
			obj = res
			return nil
		}))
		if err != nil {
			return nil, err
		}
		if obj != nil && obj.ObjectID != "" {
			return &element{selector: selector, object: obj.ObjectID}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(findPollInterval):
		}
	}
}

const scriptDisplayed = `
var el = arguments[0];
var rect = el.getBoundingClientRect();
var style = window.getComputedStyle(el);
return (rect.width > 0 || rect.height > 0) && style.visibility !== 'hidden' && style.display !== 'none';`

func (d *Driver) Displayed(ctx context.Context, el browser.Element) (bool, error) {
	var shown bool
	err := d.ExecuteScript(ctx, scriptDisplayed, &shown, el)
	return shown, err
}

// -- Pointer --

const scriptCenter = `
var r = arguments[0].getBoundingClientRect();
return {x: r.left + r.width / 2, y: r.top + r.height / 2};`

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (d *Driver) center(ctx context.Context, el browser.Element) (point, error) {
	var p point
	if err := d.ExecuteScript(ctx, scriptCenter, &p, el); err != nil {
		return point{}, fmt.Errorf("failed to locate %s: %w", el.Description(), err)
	}
	return p, nil
}

func move(p point) chromedp.Action {
	return input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y)
}

func press(p point, button input.MouseButton, count int64) chromedp.Action {
	return input.DispatchMouseEvent(input.MousePressed, p.X, p.Y).WithButton(button).WithClickCount(count)
}

func release(p point, button input.MouseButton, count int64) chromedp.Action {
	return input.DispatchMouseEvent(input.MouseReleased, p.X, p.Y).WithButton(button).WithClickCount(count)
}

func (d *Driver) Hover(ctx context.Context, el browser.Element) error {
	p, err := d.center(ctx, el)
	if err != nil {
		return err
	}
	return d.exec(ctx, 0, move(p))
}

func (d *Driver) Click(ctx context.Context, el browser.Element) error {
	p, err := d.center(ctx, el)
	if err != nil {
		return err
	}
	return d.exec(ctx, 0, move(p), press(p, input.Left, 1), release(p, input.Left, 1))
}

func (d *Driver) DoubleClick(ctx context.Context, el browser.Element) error {
	p, err := d.center(ctx, el)
	if err != nil {
		return err
	}
	return d.exec(ctx, 0,
		move(p),
		press(p, input.Left, 1), release(p, input.Left, 1),
		press(p, input.Left, 2), release(p, input.Left, 2),
	)
}

func (d *Driver) ContextClick(ctx context.Context, el browser.Element) error {
	p, err := d.center(ctx, el)
	if err != nil {
		return err
	}
	return d.exec(ctx, 0, move(p), press(p, input.Right, 1), release(p, input.Right, 1))
}

func (d *Driver) DragAndDrop(ctx context.Context, src, dst browser.Element, pause time.Duration) error {
	from, err := d.center(ctx, src)
	if err != nil {
		return err
	}
	to, err := d.center(ctx, dst)
	if err != nil {
		return err
	}
	actions := []chromedp.Action{move(from), press(from, input.Left, 1)}
	for i := 1; i <= dragSteps; i++ {
		f := float64(i) / dragSteps
		actions = append(actions, input.DispatchMouseEvent(input.MouseMoved,
			from.X+(to.X-from.X)*f, from.Y+(to.Y-from.Y)*f).WithButton(input.Left).WithButtons(1))
	}
	actions = append(actions, chromedp.Sleep(pause), release(to, input.Left, 1))
	return d.exec(ctx, 0, actions...)
}

// -- Keyboard --

func (d *Driver) focus(ctx context.Context, el browser.Element) error {
	return d.ExecuteScript(ctx, `arguments[0].focus();`, nil, el)
}

func (d *Driver) TypeText(ctx context.Context, el browser.Element, text string) error {
	if err := d.focus(ctx, el); err != nil {
		return err
	}
	return d.exec(ctx, 0, input.InsertText(text))
}

func pasteModifier() input.Modifier {
	if goruntime.GOOS == "darwin" {
		return input.ModifierMeta
	}
	return input.ModifierCtrl
}

func (d *Driver) PasteShortcut(ctx context.Context, el browser.Element) error {
	if err := d.focus(ctx, el); err != nil {
		return err
	}
	mod := pasteModifier()
	key := func(t input.KeyType) *input.DispatchKeyEventParams {
		return input.DispatchKeyEvent(t).
			WithKey("v").
			WithCode("KeyV").
			WithWindowsVirtualKeyCode(86).
			WithNativeVirtualKeyCode(86).
			WithModifiers(mod)
	}
	return d.exec(ctx, 0,
		key(input.KeyDown).WithCommands([]string{"paste"}),
		key(input.KeyUp),
	)
}

// -- Dialogs --

func (d *Driver) DialogOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialog != nil
}

func (d *Driver) HandleDialog(ctx context.Context, accept bool) (string, error) {
	d.mu.Lock()
	dlg := d.dialog
	d.mu.Unlock()
	if dlg == nil {
		return "", browser.ErrNoDialog
	}
	if err := d.exec(ctx, 0, page.HandleJavaScriptDialog(accept)); err != nil {
		return "", fmt.Errorf("failed to handle dialog: %w", err)
	}
	d.mu.Lock()
	d.dialog = nil
	d.mu.Unlock()
	return dlg.Message, nil
}

// -- Console --

// ConsolePolling is always available: the tab buffers every console record
// until it is read.
func (d *Driver) ConsolePolling() bool { return true }

func (d *Driver) ConsoleLogs(context.Context) ([]browser.ConsoleEntry, error) {
	return d.console.Drain(), nil
}

func (d *Driver) SubscribeConsole(fn func(browser.ConsoleEntry)) (browser.Subscription, error) {
	return d.console.Subscribe(fn), nil
}

// -- Page state --

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.exec(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	return buf, err
}

func (d *Driver) WindowSize(ctx context.Context) (int, int, error) {
	var width, height int64
	err := d.exec(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		_, bounds, err := cdpbrowser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		width, height = bounds.Width, bounds.Height
		return nil
	}))
	return int(width), int(height), err
}

// Quit closes the tab, shuts the browser down when this process started it
// and removes any temporary profile.
func (d *Driver) Quit(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.ctx) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		d.cancel()
		if d.allocCancel != nil {
			d.allocCancel()
		}
		d.console.Close()
		if d.tempDir != "" {
			if rmErr := os.RemoveAll(d.tempDir); rmErr != nil {
				d.logger.Debug("Failed to remove temporary profile.", zap.String("dir", d.tempDir), zap.Error(rmErr))
			}
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
