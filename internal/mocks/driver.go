// File: internal/mocks/driver.go
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/steadyhand/internal/browser"
)

// -- Element --

// FakeElement is an in-memory DOM node for FakeDriver.
type FakeElement struct {
	Selector string
	Visible  bool
}

func (e *FakeElement) Description() string { return e.Selector }

// -- Driver --

// FakeDriver is a scriptable browser.Driver. Every call is recorded in Calls
// as "<op>:<selector>"; the On* hooks replace the default behaviour, which is
// to succeed without side effects.
type FakeDriver struct {
	mu sync.Mutex

	KindValue     browser.Kind
	Engine        string
	Polling       bool
	URL           string
	Width         int
	Height        int
	ScreenshotPNG []byte
	Elements      map[string]*FakeElement

	Calls   []string
	Scripts []string
	Typed   []string

	OnHover        func(el browser.Element) error
	OnClick        func(el browser.Element) error
	OnDoubleClick  func(el browser.Element) error
	OnContextClick func(el browser.Element) error
	OnDrag         func(src, dst browser.Element) error
	OnType         func(el browser.Element, text string) error
	OnPaste        func(el browser.Element) error
	// OnScript returns the value the script evaluates to.
	OnScript     func(body string, args []any) (any, error)
	OnNavigate   func(url string) error
	OnQuit       func() error
	OnWindowSize func() (int, int, error)
	SubscribeErr error

	QuitCount int

	timeouts   browser.Timeouts
	console    []browser.ConsoleEntry
	subs       map[int]func(browser.ConsoleEntry)
	nextSub    int
	dialogOpen bool
	dialogText string
}

var _ browser.Driver = (*FakeDriver)(nil)

// NewFakeDriver returns a driver of the given kind with polling enabled for
// Chromium kinds.
func NewFakeDriver(kind browser.Kind) *FakeDriver {
	engine := string(kind)
	if kind == browser.Edge {
		engine = "msedge"
	}
	return &FakeDriver{
		KindValue: kind,
		Engine:    engine,
		Polling:   kind.ChromiumFamily(),
		URL:       "about:blank",
		Width:     1280,
		Height:    720,
		Elements:  map[string]*FakeElement{},
		subs:      map[int]func(browser.ConsoleEntry){},
	}
}

// Element registers (or returns) the element for selector.
func (d *FakeDriver) Element(selector string) *FakeElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.Elements[selector]; ok {
		return el
	}
	el := &FakeElement{Selector: selector, Visible: true}
	d.Elements[selector] = el
	return el
}

func (d *FakeDriver) record(op string, els ...browser.Element) {
	parts := []string{op}
	for _, el := range els {
		if el != nil {
			parts = append(parts, el.Description())
		}
	}
	d.mu.Lock()
	d.Calls = append(d.Calls, strings.Join(parts, ":"))
	d.mu.Unlock()
}

// CallLog returns a copy of the recorded calls.
func (d *FakeDriver) CallLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Calls...)
}

// ScriptLog returns a copy of the executed script bodies.
func (d *FakeDriver) ScriptLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Scripts...)
}

// CountCalls counts recorded calls with the given op prefix.
func (d *FakeDriver) CountCalls(prefix string) int {
	n := 0
	for _, c := range d.CallLog() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (d *FakeDriver) Kind() browser.Kind { return d.KindValue }
func (d *FakeDriver) EngineName() string { return d.Engine }

func (d *FakeDriver) SetTimeouts(t browser.Timeouts) {
	d.mu.Lock()
	d.timeouts = t
	d.mu.Unlock()
}

func (d *FakeDriver) Timeouts() browser.Timeouts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeouts
}

func (d *FakeDriver) ExecuteScript(_ context.Context, body string, result any, args ...any) error {
	d.mu.Lock()
	d.Scripts = append(d.Scripts, body)
	hook := d.OnScript
	d.mu.Unlock()

	var value any
	if hook != nil {
		v, err := hook(body, args)
		if err != nil {
			return err
		}
		value = v
	}
	if result == nil {
		return nil
	}
	raw, err := jsoniter.Marshal(value)
	if err != nil {
		return fmt.Errorf("fake script result: %w", err)
	}
	return jsoniter.Unmarshal(raw, result)
}

func (d *FakeDriver) Hover(_ context.Context, el browser.Element) error {
	d.record("hover", el)
	if d.OnHover != nil {
		return d.OnHover(el)
	}
	return nil
}

func (d *FakeDriver) Click(_ context.Context, el browser.Element) error {
	d.record("click", el)
	if d.OnClick != nil {
		return d.OnClick(el)
	}
	return nil
}

func (d *FakeDriver) DoubleClick(_ context.Context, el browser.Element) error {
	d.record("dblclick", el)
	if d.OnDoubleClick != nil {
		return d.OnDoubleClick(el)
	}
	return nil
}

func (d *FakeDriver) ContextClick(_ context.Context, el browser.Element) error {
	d.record("contextclick", el)
	if d.OnContextClick != nil {
		return d.OnContextClick(el)
	}
	return nil
}

func (d *FakeDriver) DragAndDrop(_ context.Context, src, dst browser.Element, _ time.Duration) error {
	d.record("drag", src, dst)
	if d.OnDrag != nil {
		return d.OnDrag(src, dst)
	}
	return nil
}

func (d *FakeDriver) TypeText(_ context.Context, el browser.Element, text string) error {
	d.record("type", el)
	d.mu.Lock()
	d.Typed = append(d.Typed, text)
	d.mu.Unlock()
	if d.OnType != nil {
		return d.OnType(el, text)
	}
	return nil
}

func (d *FakeDriver) PasteShortcut(_ context.Context, el browser.Element) error {
	d.record("paste", el)
	if d.OnPaste != nil {
		return d.OnPaste(el)
	}
	return nil
}

// OpenDialog simulates the page raising an alert.
func (d *FakeDriver) OpenDialog(message string) {
	d.mu.Lock()
	d.dialogOpen, d.dialogText = true, message
	d.mu.Unlock()
}

func (d *FakeDriver) DialogOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialogOpen
}

func (d *FakeDriver) HandleDialog(_ context.Context, _ bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dialogOpen {
		return "", browser.ErrNoDialog
	}
	d.dialogOpen = false
	return d.dialogText, nil
}

// EmitConsole simulates a console record: it is buffered for polling and
// delivered to live subscriptions.
func (d *FakeDriver) EmitConsole(e browser.ConsoleEntry) {
	d.mu.Lock()
	d.console = append(d.console, e)
	subs := make([]func(browser.ConsoleEntry), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (d *FakeDriver) ConsolePolling() bool { return d.Polling }

func (d *FakeDriver) ConsoleLogs(context.Context) ([]browser.ConsoleEntry, error) {
	if !d.Polling {
		return nil, browser.ErrConsoleLogsUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.console
	d.console = nil
	return out, nil
}

// Subscribers is the number of live console subscriptions.
func (d *FakeDriver) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

func (d *FakeDriver) SubscribeConsole(fn func(browser.ConsoleEntry)) (browser.Subscription, error) {
	if d.SubscribeErr != nil {
		return nil, d.SubscribeErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	return &fakeSubscription{driver: d, id: id}, nil
}

type fakeSubscription struct {
	driver *FakeDriver
	id     int
	once   sync.Once
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		s.driver.mu.Lock()
		delete(s.driver.subs, s.id)
		s.driver.mu.Unlock()
	})
	return nil
}

func (d *FakeDriver) Navigate(_ context.Context, url string) error {
	d.record("navigate")
	if d.OnNavigate != nil {
		if err := d.OnNavigate(url); err != nil {
			return err
		}
	}
	d.SetURL(url)
	return nil
}

// SetURL changes the current URL as if the page navigated itself.
func (d *FakeDriver) SetURL(url string) {
	d.mu.Lock()
	d.URL = url
	d.mu.Unlock()
}

func (d *FakeDriver) CurrentURL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.URL, nil
}

func (d *FakeDriver) Find(_ context.Context, selector string) (browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.Elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return el, nil
}

func (d *FakeDriver) Displayed(_ context.Context, el browser.Element) (bool, error) {
	fe, ok := el.(*FakeElement)
	if !ok {
		return false, fmt.Errorf("foreign element %T", el)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fe.Visible, nil
}

// SetVisible flips an element's visibility.
func (d *FakeDriver) SetVisible(el *FakeElement, visible bool) {
	d.mu.Lock()
	el.Visible = visible
	d.mu.Unlock()
}

func (d *FakeDriver) Screenshot(context.Context) ([]byte, error) {
	d.record("screenshot")
	if d.ScreenshotPNG == nil {
		return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, nil
	}
	return d.ScreenshotPNG, nil
}

func (d *FakeDriver) WindowSize(context.Context) (int, int, error) {
	if d.OnWindowSize != nil {
		return d.OnWindowSize()
	}
	return d.Width, d.Height, nil
}

func (d *FakeDriver) Quit(context.Context) error {
	d.mu.Lock()
	d.QuitCount++
	d.mu.Unlock()
	d.record("quit")
	if d.OnQuit != nil {
		return d.OnQuit()
	}
	return nil
}
