// internal/browser/pw/options.go
package pw

import (
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

// channel is the installed-browser channel Playwright launches for kind.
func channel(kind browser.Kind) string {
	switch kind {
	case browser.Chrome:
		return "chrome"
	case browser.Edge:
		return "msedge"
	}
	return ""
}

// launchArgs drops the switches Playwright manages itself.
func launchArgs(caps capabilities.Set) []string {
	var out []string
	for _, arg := range caps.Args() {
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch name {
		case "headless", "user-data-dir":
			continue
		}
		out = append(out, arg)
	}
	return out
}

func launchOptions(caps capabilities.Set) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(caps.Headless),
		Args:     launchArgs(caps),
	}
	if caps.BinaryPath != "" {
		opts.ExecutablePath = playwright.String(caps.BinaryPath)
	} else if ch := channel(caps.Kind); ch != "" {
		opts.Channel = playwright.String(ch)
	}
	if caps.DownloadDir != "" {
		opts.DownloadsPath = playwright.String(caps.DownloadDir)
	}
	if caps.Proxy.Enabled() {
		opts.Proxy = &playwright.Proxy{Server: "http://" + caps.Proxy.HTTP}
	}
	if caps.Kind == browser.Firefox {
		opts.FirefoxUserPrefs = caps.Prefs()
	}
	return opts
}

func contextOptions(caps capabilities.Set) playwright.BrowserNewContextOptions {
	return playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(caps.AcceptInsecureCerts),
	}
}

// engineName is the identifier the console allow-list matches on.
func engineName(kind browser.Kind) string {
	switch kind {
	case browser.Edge:
		return "msedge"
	case browser.Firefox:
		return "firefox"
	}
	return "chrome"
}

// wrapScript adapts a function body that reads arguments[i] to Playwright's
// single-argument evaluate form.
func wrapScript(body string) string {
	return "(args) => (function () {\n" + body + "\n}).apply(null, args)"
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
