// internal/browser/cdp/console.go
package cdp

import (
	"fmt"
	"strings"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/runtime"

	"github.com/xkilldash9x/steadyhand/internal/browser"
)

func timestamp(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Now()
	}
	return ts.Time()
}

func entryFromConsoleAPI(e *runtime.EventConsoleAPICalled) browser.ConsoleEntry {
	var text strings.Builder
	for i, arg := range e.Args {
		if arg == nil {
			continue
		}
		if i > 0 {
			text.WriteString(" ")
		}
		var val any
		if len(arg.Value) > 0 && json.Unmarshal([]byte(arg.Value), &val) == nil {
			text.WriteString(fmt.Sprintf("%v", val))
		} else if arg.Description != "" {
			text.WriteString(arg.Description)
		} else {
			text.WriteString(fmt.Sprintf("[%s]", arg.Type))
		}
	}
	return browser.ConsoleEntry{
		Timestamp: timestamp(e.Timestamp),
		Level:     browser.LevelFromConsole(string(e.Type)),
		Text:      text.String(),
	}
}

func entryFromException(e *runtime.EventExceptionThrown) (browser.ConsoleEntry, bool) {
	if e.ExceptionDetails == nil {
		return browser.ConsoleEntry{}, false
	}
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	return browser.ConsoleEntry{
		Timestamp: timestamp(e.Timestamp),
		Level:     browser.LevelError,
		Text:      text,
	}, true
}

// entryFromLogDomain converts Log domain entries: network failures, CSP
// violations, deprecations and the like.
func entryFromLogDomain(ev any) (browser.ConsoleEntry, bool) {
	e, ok := ev.(*cdplog.EventEntryAdded)
	if !ok || e.Entry == nil {
		return browser.ConsoleEntry{}, false
	}
	text := e.Entry.Text
	if e.Entry.URL != "" && !strings.Contains(text, e.Entry.URL) {
		text = e.Entry.URL + " - " + text
	}
	return browser.ConsoleEntry{
		Timestamp: timestamp(e.Entry.Timestamp),
		Level:     browser.LevelFromConsole(string(e.Entry.Level)),
		Text:      text,
	}, true
}
