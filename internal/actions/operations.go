// internal/actions/operations.go
package actions

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
)

var errClipboardUnsupported = errors.New("system clipboard unavailable")

// -- Strategies --

func (e *Engine) native(name string, fn func(ctx context.Context) error) Strategy {
	return Strategy{Name: name, Do: fn}
}

func (e *Engine) synthetic(el browser.Element, event string, button int) Strategy {
	return Strategy{
		Name: "synthetic " + event,
		Do: func(ctx context.Context) error {
			return e.drv.ExecuteScript(ctx, scriptDispatchMouseEvent, nil, el, event, button)
		},
	}
}

func (e *Engine) forceVisible(root browser.Element, selector string) Strategy {
	return Strategy{
		Name: "force visible",
		Do: func(ctx context.Context) error {
			return e.drv.ExecuteScript(ctx, scriptForceVisible, nil, elementArg(root), selector)
		},
	}
}

func (e *Engine) contextClick(el browser.Element) Strategy {
	return e.native("native context click", func(ctx context.Context) error {
		return e.drv.ContextClick(ctx, el)
	})
}

// -- Hover --

// Hover moves the pointer onto el until holds, falling back to a synthetic
// mouseover.
func (e *Engine) Hover(ctx context.Context, el browser.Element, until Condition, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:    "hover",
		Targets: []browser.Element{el},
		Primary: e.native("native hover", func(ctx context.Context) error {
			return e.drv.Hover(ctx, el)
		}),
		Fallbacks: []Strategy{e.synthetic(el, "mouseover", 0)},
		Until:     until,
		Timeout:   timeout,
	})
}

// HoverReveal hovers root until the element matching selector inside it is
// visible. As a last resort the element is made visible by force.
func (e *Engine) HoverReveal(ctx context.Context, root browser.Element, selector string, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:    "hover_reveal",
		Targets: []browser.Element{root},
		Primary: e.native("native hover", func(ctx context.Context) error {
			return e.drv.Hover(ctx, root)
		}),
		Fallbacks: []Strategy{e.synthetic(root, "mouseover", 0), e.forceVisible(root, selector)},
		Until:     VisibleUnder(root, selector),
		Timeout:   timeout,
	})
}

// -- Click --

// Click clicks el until holds, falling back to the element's own click().
func (e *Engine) Click(ctx context.Context, el browser.Element, until Condition, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:    "click",
		Targets: []browser.Element{el},
		Primary: e.native("native click", func(ctx context.Context) error {
			return e.drv.Click(ctx, el)
		}),
		Fallbacks: []Strategy{{
			Name: "synthetic click",
			Do: func(ctx context.Context) error {
				return e.drv.ExecuteScript(ctx, scriptClick, nil, el)
			},
		}},
		Until:   until,
		Timeout: timeout,
	})
}

// ClickReveal clicks root until the element matching selector inside it is
// visible, forcing it visible as a last resort.
func (e *Engine) ClickReveal(ctx context.Context, root browser.Element, selector string, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:    "click_reveal",
		Targets: []browser.Element{root},
		Primary: e.native("native click", func(ctx context.Context) error {
			return e.drv.Click(ctx, root)
		}),
		Fallbacks: []Strategy{
			{Name: "synthetic click", Do: func(ctx context.Context) error {
				return e.drv.ExecuteScript(ctx, scriptClick, nil, root)
			}},
			e.forceVisible(root, selector),
		},
		Until:   VisibleUnder(root, selector),
		Timeout: timeout,
	})
}

// DoubleClick double-clicks el until holds, falling back to a synthetic dblclick.
func (e *Engine) DoubleClick(ctx context.Context, el browser.Element, until Condition, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:    "double_click",
		Targets: []browser.Element{el},
		Primary: e.native("native double click", func(ctx context.Context) error {
			return e.drv.DoubleClick(ctx, el)
		}),
		Fallbacks: []Strategy{e.synthetic(el, "dblclick", 0)},
		Until:     until,
		Timeout:   timeout,
	})
}

// -- Context click --

// ContextClickExpectAlert right-clicks el expecting a JavaScript dialog. The
// escalation ends by raising alert(fallbackText) from the page itself.
func (e *Engine) ContextClickExpectAlert(ctx context.Context, el browser.Element, fallbackText string, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:    "context_click_alert",
		Targets: []browser.Element{el},
		Primary: e.contextClick(el),
		Fallbacks: []Strategy{
			e.synthetic(el, "contextmenu", 2),
			{Name: "forced alert", Do: func(ctx context.Context) error {
				return e.drv.ExecuteScript(ctx, scriptForceAlert, nil, fallbackText)
			}},
		},
		Until:   DialogPresent(),
		Timeout: timeout,
	})
}

// ContextClickExpectMenu right-clicks target until the menu matching
// menuSelector inside it is visible.
func (e *Engine) ContextClickExpectMenu(ctx context.Context, target browser.Element, menuSelector string, timeout time.Duration) bool {
	return e.contextClickUntil(ctx, "context_click_menu", target, VisibleUnder(target, menuSelector), timeout)
}

// ContextClickExpectURLChange right-clicks target until the page URL changes.
func (e *Engine) ContextClickExpectURLChange(ctx context.Context, target browser.Element, timeout time.Duration) bool {
	before, err := e.drv.CurrentURL(ctx)
	if err != nil {
		before = ""
	}
	return e.contextClickUntil(ctx, "context_click_url", target, URLChangedFrom(before), timeout)
}

// ContextClickExpectText right-clicks target until textEl reads want.
func (e *Engine) ContextClickExpectText(ctx context.Context, target, textEl browser.Element, want string, timeout time.Duration) bool {
	return e.contextClickUntil(ctx, "context_click_text", target, TextEquals(textEl, want), timeout)
}

// ContextClickCustom right-clicks target until holds.
func (e *Engine) ContextClickCustom(ctx context.Context, target browser.Element, until Condition, timeout time.Duration) bool {
	return e.contextClickUntil(ctx, "context_click_custom", target, until, timeout)
}

func (e *Engine) contextClickUntil(ctx context.Context, name string, target browser.Element, until Condition, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:      name,
		Targets:   []browser.Element{target},
		Primary:   e.contextClick(target),
		Fallbacks: []Strategy{e.synthetic(target, "contextmenu", 2)},
		Until:     until,
		Timeout:   timeout,
	})
}

// -- Drag and drop --

// DragAndDrop drags src onto dst with a press, move, pause and release, and
// falls back to a synthetic HTML5 drag sequence.
func (e *Engine) DragAndDrop(ctx context.Context, src, dst browser.Element, until Condition, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:    "drag_and_drop",
		Targets: []browser.Element{src, dst},
		Primary: e.native("native drag", func(ctx context.Context) error {
			return e.drv.DragAndDrop(ctx, src, dst, e.dragPause)
		}),
		Fallbacks: []Strategy{{
			Name: "synthetic html5 drag",
			Do: func(ctx context.Context) error {
				return e.drv.ExecuteScript(ctx, scriptHTML5DragAndDrop, nil, src, dst)
			},
		}},
		Until:   until,
		Timeout: timeout,
	})
}

// -- Text entry --

func (e *Engine) injectValue(el browser.Element, text string) Strategy {
	return Strategy{
		Name: "script value setter",
		Do: func(ctx context.Context) error {
			return e.drv.ExecuteScript(ctx, scriptSetValue, nil, el, text)
		},
	}
}

// SetValue types text into el and verifies the resulting value, falling back
// to setting it from script with input and change events.
func (e *Engine) SetValue(ctx context.Context, el browser.Element, text string, timeout time.Duration) bool {
	return e.Run(ctx, Attempt{
		Name:    "set_value",
		Targets: []browser.Element{el},
		Primary: e.native("native typing", func(ctx context.Context) error {
			return e.drv.TypeText(ctx, el, text)
		}),
		Fallbacks: []Strategy{e.injectValue(el, text)},
		Until:     ValueEquals(el, text),
		Timeout:   timeout,
	})
}

// Paste puts text on the system clipboard and sends the paste shortcut to
// el. Headless browsers have no clipboard to read, so there (and whenever the
// clipboard write fails) the value is injected directly instead.
func (e *Engine) Paste(ctx context.Context, el browser.Element, text string, timeout time.Duration) bool {
	inject := e.injectValue(el, text)

	primary := inject
	if !e.headless {
		if err := e.clipboard.WriteAll(text); err != nil {
			e.logger.Debug("Clipboard unavailable, injecting value.", zap.Error(err))
		} else {
			primary = e.native("paste shortcut", func(ctx context.Context) error {
				return e.drv.PasteShortcut(ctx, el)
			})
		}
	}

	a := Attempt{
		Name:    "paste",
		Targets: []browser.Element{el},
		Primary: primary,
		Until:   ValueEquals(el, text),
		Timeout: timeout,
	}
	if primary.Name != inject.Name {
		a.Fallbacks = []Strategy{inject}
	}
	return e.Run(ctx, a)
}
