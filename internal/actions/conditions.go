// internal/actions/conditions.go
package actions

import (
	"context"

	"github.com/xkilldash9x/steadyhand/internal/browser"
)

// Condition is a postcondition. Conditions treat every driver error as
// "not yet" so a flaky read never aborts a poll.
type Condition func(ctx context.Context, d browser.Driver) bool

// Always holds immediately.
func Always() Condition {
	return func(context.Context, browser.Driver) bool { return true }
}

// Visible holds when el is displayed and neither transparent nor display:none.
func Visible(el browser.Element) Condition {
	return func(ctx context.Context, d browser.Driver) bool {
		shown, err := d.Displayed(ctx, el)
		if err != nil || !shown {
			return false
		}
		var style struct {
			Opacity string `json:"opacity"`
			Display string `json:"display"`
		}
		if err := d.ExecuteScript(ctx, scriptComputedVisibility, &style, el); err != nil {
			return false
		}
		return style.Opacity != "0" && style.Display != "none"
	}
}

// VisibleUnder holds when the first match of selector inside root is visible.
// A nil root searches the whole document.
func VisibleUnder(root browser.Element, selector string) Condition {
	return func(ctx context.Context, d browser.Driver) bool {
		var visible bool
		if err := d.ExecuteScript(ctx, scriptVisibleUnder, &visible, elementArg(root), selector); err != nil {
			return false
		}
		return visible
	}
}

// URLChangedFrom holds once the page URL differs from before.
func URLChangedFrom(before string) Condition {
	return func(ctx context.Context, d browser.Driver) bool {
		current, err := d.CurrentURL(ctx)
		return err == nil && current != before
	}
}

// TextEquals holds when the visible text of el equals want.
func TextEquals(el browser.Element, want string) Condition {
	return func(ctx context.Context, d browser.Driver) bool {
		var text string
		if err := d.ExecuteScript(ctx, scriptVisibleText, &text, el); err != nil {
			return false
		}
		return text == want
	}
}

// ValueEquals holds when the form value of el equals want.
func ValueEquals(el browser.Element, want string) Condition {
	return func(ctx context.Context, d browser.Driver) bool {
		var value string
		if err := d.ExecuteScript(ctx, scriptReadValue, &value, el); err != nil {
			return false
		}
		return value == want
	}
}

// DialogPresent holds while a JavaScript dialog is open.
func DialogPresent() Condition {
	return func(_ context.Context, d browser.Driver) bool { return d.DialogOpen() }
}

// elementArg turns a nil interface into an untyped nil so backends pass null.
func elementArg(el browser.Element) any {
	if el == nil {
		return nil
	}
	return el
}
