// internal/browser/pw/driver.go
package pw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type element struct {
	selector string
	handle   playwright.ElementHandle
}

func (e *element) Description() string { return e.selector }

// Driver controls one page of a Playwright-managed browser.
type Driver struct {
	kind   browser.Kind
	logger *zap.Logger

	// owned is the driver process started for this browser alone; nil when
	// the browser runs under a shared Service.
	owned   *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page

	mu        sync.Mutex
	timeouts  browser.Timeouts
	dialog    playwright.Dialog
	console   *browser.ConsoleHub
	closed    bool
	closeOnce sync.Once
}

var _ browser.Driver = (*Driver)(nil)

// newDriver opens a context and page in b and starts listening for dialogs
// and console output.
func newDriver(ctx context.Context, kind browser.Kind, b playwright.Browser, owned *playwright.Playwright, opts playwright.BrowserNewContextOptions, logger *zap.Logger) (*Driver, error) {
	page, err := await(ctx, func() (playwright.Page, error) {
		bctx, err := b.NewContext(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create browser context: %w", err)
		}
		p, err := bctx.NewPage()
		if err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("failed to open page: %w", err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	d := &Driver{
		kind:    kind,
		logger:  logger,
		owned:   owned,
		browser: b,
		page:    page,
		console: browser.NewConsoleHub(browser.DefaultConsoleCapacity),
	}
	page.OnDialog(func(dlg playwright.Dialog) {
		d.mu.Lock()
		d.dialog = dlg
		d.mu.Unlock()
	})
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		d.console.Add(browser.ConsoleEntry{
			Timestamp: time.Now(),
			Level:     browser.LevelFromConsole(msg.Type()),
			Text:      msg.Text(),
		})
	})
	page.OnPageError(func(err error) {
		d.console.Add(browser.ConsoleEntry{Timestamp: time.Now(), Level: browser.LevelError, Text: err.Error()})
	})
	logger.Debug("Page opened.", zap.String("version", b.Version()))
	return d, nil
}

func (d *Driver) Kind() browser.Kind { return d.kind }
func (d *Driver) EngineName() string { return engineName(d.kind) }

func (d *Driver) SetTimeouts(t browser.Timeouts) {
	d.mu.Lock()
	d.timeouts = t
	d.mu.Unlock()
	d.page.SetDefaultNavigationTimeout(float64(t.PageLoad.Milliseconds()))
	d.page.SetDefaultTimeout(float64(t.ImplicitWait.Milliseconds()))
}

func (d *Driver) Timeouts() browser.Timeouts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeouts
}

func (d *Driver) live() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return browser.ErrSessionClosed
	}
	return nil
}

func (d *Driver) handle(el browser.Element) (playwright.ElementHandle, error) {
	e, ok := el.(*element)
	if !ok || e == nil {
		return nil, fmt.Errorf("element %T belongs to another driver", el)
	}
	return e.handle, nil
}

// call runs fn against a live page, abandoning it when ctx ends.
func (d *Driver) call(ctx context.Context, fn func() error) error {
	if err := d.live(); err != nil {
		return err
	}
	_, err := await(ctx, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// -- Scripts --

func (d *Driver) ExecuteScript(ctx context.Context, body string, result any, args ...any) error {
	pass := make([]any, len(args))
	for i, a := range args {
		if el, ok := a.(*element); ok {
			pass[i] = el.handle
			continue
		}
		if _, ok := a.(browser.Element); ok {
			return fmt.Errorf("argument %d: element %T belongs to another driver", i, a)
		}
		pass[i] = a
	}

	if timeout := d.Timeouts().Script; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var value any
	err := d.call(ctx, func() error {
		var err error
		value, err = d.page.Evaluate(wrapScript(body), pass)
		return err
	})
	if err != nil {
		return fmt.Errorf("script failed: %w", err)
	}
	if result == nil || value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

// -- Navigation --

func (d *Driver) Navigate(ctx context.Context, url string) error {
	err := d.call(ctx, func() error {
		_, err := d.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   ms(d.Timeouts().PageLoad),
		})
		return err
	})
	if err == nil || !errors.Is(err, playwright.ErrTimeout) {
		return err
	}
	var state string
	if serr := d.ExecuteScript(ctx, `return document.readyState;`, &state); serr == nil && state != "loading" {
		return nil
	}
	return fmt.Errorf("page load timed out: %w", err)
}

func (d *Driver) CurrentURL(context.Context) (string, error) {
	if err := d.live(); err != nil {
		return "", err
	}
	return d.page.URL(), nil
}

func (d *Driver) Find(ctx context.Context, selector string) (browser.Element, error) {
	var h playwright.ElementHandle
	err := d.call(ctx, func() error {
		var err error
		h, err = d.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: ms(d.Timeouts().ImplicitWait),
		})
		return err
	})
	if errors.Is(err, playwright.ErrTimeout) || (err == nil && h == nil) {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	if err != nil {
		return nil, err
	}
	return &element{selector: selector, handle: h}, nil
}

func (d *Driver) Displayed(ctx context.Context, el browser.Element) (bool, error) {
	h, err := d.handle(el)
	if err != nil {
		return false, err
	}
	var shown bool
	err = d.call(ctx, func() error {
		var err error
		shown, err = h.IsVisible()
		return err
	})
	return shown, err
}

// -- Pointer --

func (d *Driver) Hover(ctx context.Context, el browser.Element) error {
	h, err := d.handle(el)
	if err != nil {
		return err
	}
	return d.call(ctx, func() error { return h.Hover() })
}

func (d *Driver) Click(ctx context.Context, el browser.Element) error {
	h, err := d.handle(el)
	if err != nil {
		return err
	}
	return d.call(ctx, func() error { return h.Click() })
}

func (d *Driver) DoubleClick(ctx context.Context, el browser.Element) error {
	h, err := d.handle(el)
	if err != nil {
		return err
	}
	return d.call(ctx, func() error { return h.Dblclick() })
}

func (d *Driver) ContextClick(ctx context.Context, el browser.Element) error {
	h, err := d.handle(el)
	if err != nil {
		return err
	}
	return d.call(ctx, func() error {
		return h.Click(playwright.ElementHandleClickOptions{Button: playwright.MouseButtonRight})
	})
}

func center(h playwright.ElementHandle) (float64, float64, error) {
	box, err := h.BoundingBox()
	if err != nil {
		return 0, 0, err
	}
	if box == nil {
		return 0, 0, errors.New("element is not rendered")
	}
	return box.X + box.Width/2, box.Y + box.Height/2, nil
}

func (d *Driver) DragAndDrop(ctx context.Context, src, dst browser.Element, pause time.Duration) error {
	from, err := d.handle(src)
	if err != nil {
		return err
	}
	to, err := d.handle(dst)
	if err != nil {
		return err
	}
	return d.call(ctx, func() error {
		fx, fy, err := center(from)
		if err != nil {
			return fmt.Errorf("failed to locate %s: %w", src.Description(), err)
		}
		tx, ty, err := center(to)
		if err != nil {
			return fmt.Errorf("failed to locate %s: %w", dst.Description(), err)
		}
		mouse := d.page.Mouse()
		if err := mouse.Move(fx, fy); err != nil {
			return err
		}
		if err := mouse.Down(); err != nil {
			return err
		}
		if err := mouse.Move(tx, ty, playwright.MouseMoveOptions{Steps: playwright.Int(5)}); err != nil {
			return err
		}
		time.Sleep(pause)
		return mouse.Up()
	})
}

// -- Keyboard --

func (d *Driver) TypeText(ctx context.Context, el browser.Element, text string) error {
	h, err := d.handle(el)
	if err != nil {
		return err
	}
	return d.call(ctx, func() error {
		if err := h.Focus(); err != nil {
			return err
		}
		return d.page.Keyboard().Type(text)
	})
}

func (d *Driver) PasteShortcut(ctx context.Context, el browser.Element) error {
	h, err := d.handle(el)
	if err != nil {
		return err
	}
	return d.call(ctx, func() error {
		if err := h.Focus(); err != nil {
			return err
		}
		return d.page.Keyboard().Press("ControlOrMeta+V")
	})
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
	d.dialog = nil
	d.mu.Unlock()
	if dlg == nil {
		return "", browser.ErrNoDialog
	}
	msg := dlg.Message()
	err := d.call(ctx, func() error {
		if accept {
			return dlg.Accept()
		}
		return dlg.Dismiss()
	})
	if err != nil {
		return "", fmt.Errorf("failed to handle dialog: %w", err)
	}
	return msg, nil
}

// -- Console --

// ConsolePolling is only offered for Chromium engines; Firefox output is
// delivered through SubscribeConsole alone.
func (d *Driver) ConsolePolling() bool { return d.kind.ChromiumFamily() }

func (d *Driver) ConsoleLogs(context.Context) ([]browser.ConsoleEntry, error) {
	if !d.ConsolePolling() {
		return nil, browser.ErrConsoleLogsUnsupported
	}
	return d.console.Drain(), nil
}

func (d *Driver) SubscribeConsole(fn func(browser.ConsoleEntry)) (browser.Subscription, error) {
	if err := d.live(); err != nil {
		return nil, err
	}
	return d.console.Subscribe(fn), nil
}

// -- Page state --

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.call(ctx, func() error {
		var err error
		buf, err = d.page.Screenshot()
		return err
	})
	return buf, err
}

func (d *Driver) WindowSize(ctx context.Context) (int, int, error) {
	if err := d.live(); err != nil {
		return 0, 0, err
	}
	if size := d.page.ViewportSize(); size != nil {
		return size.Width, size.Height, nil
	}
	var dims []int
	if err := d.ExecuteScript(ctx, `return [window.outerWidth, window.outerHeight];`, &dims); err != nil {
		return 0, 0, err
	}
	if len(dims) != 2 {
		return 0, 0, errors.New("unexpected window size result")
	}
	return dims[0], dims[1], nil
}

// Quit closes the page's context and the browser, then stops a privately
// owned driver process.
func (d *Driver) Quit(ctx context.Context) error {
	var errs []error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.dialog = nil
		d.mu.Unlock()
		d.console.Close()

		_, err := await(ctx, func() (struct{}, error) {
			var errs []error
			if err := d.page.Context().Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
				errs = append(errs, err)
			}
			if err := d.browser.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
				errs = append(errs, err)
			}
			if d.owned != nil {
				if err := d.owned.Stop(); err != nil {
					errs = append(errs, fmt.Errorf("failed to stop private driver: %w", err))
				}
			}
			return struct{}{}, errors.Join(errs...)
		})
		if err != nil {
			errs = append(errs, err)
		}
	})
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
