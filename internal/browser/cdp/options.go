// internal/browser/cdp/options.go
package cdp

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Flag is one command line switch passed to the browser.
type Flag struct {
	Name  string
	Value any
}

// Flags turns a capability set into browser switches. Switches of the form
// --name=value keep their value; bare switches become true. driverLog, when
// set, enables the browser's own log file.
func Flags(caps capabilities.Set, driverLog string) []Flag {
	flags := []Flag{
		{Name: "no-first-run", Value: true},
		{Name: "no-default-browser-check", Value: true},
		{Name: "enable-automation", Value: true},
	}
	if caps.AcceptInsecureCerts {
		flags = append(flags, Flag{Name: "ignore-certificate-errors", Value: true})
	}
	for _, arg := range caps.Args() {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "user-data-dir" {
			// Applied through chromedp.UserDataDir.
			continue
		}
		if hasValue {
			flags = append(flags, Flag{Name: name, Value: value})
		} else {
			flags = append(flags, Flag{Name: name, Value: true})
		}
	}
	if driverLog != "" {
		flags = append(flags,
			Flag{Name: "enable-logging", Value: true},
			Flag{Name: "v", Value: "1"},
			Flag{Name: "log-file", Value: driverLog},
		)
	}
	return flags
}

// ExecOptions builds the allocator options for a local launch.
func ExecOptions(caps capabilities.Set, userDataDir, driverLog string) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, f := range Flags(caps, driverLog) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if caps.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(caps.BinaryPath))
	}
	if userDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(userDataDir))
	}
	return opts
}

// expandPrefs turns dotted preference keys into the nested object layout of
// a Chromium Preferences file.
func expandPrefs(prefs map[string]any) map[string]any {
	out := map[string]any{}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts := strings.Split(k, ".")
		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = prefs[k]
	}
	return out
}

// writePreferences seeds <dir>/Default/Preferences. An existing file belongs
// to a real profile and is left untouched.
func writePreferences(dir string, prefs map[string]any) (bool, error) {
	if len(prefs) == 0 {
		return false, nil
	}
	path := filepath.Join(dir, "Default", "Preferences")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create profile directory: %w", err)
	}
	body, err := json.Marshal(expandPrefs(prefs))
	if err != nil {
		return false, fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return false, fmt.Errorf("failed to write preferences: %w", err)
	}
	return true, nil
}

// engineName maps a Chromium user agent onto the engine identifier used by
// the console allow-list.
func engineName(kind browser.Kind, userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Edg/"):
		return "msedge"
	case userAgent == "" && kind == browser.Edge:
		return "msedge"
	}
	return "chrome"
}
