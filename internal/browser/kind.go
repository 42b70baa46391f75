// internal/browser/kind.go
package browser

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a browser engine family.
type Kind string

const (
	Chrome  Kind = "chrome"
	Firefox Kind = "firefox"
	Edge    Kind = "edge"
)

// Kinds lists every supported browser kind in a stable order.
var Kinds = []Kind{Chrome, Firefox, Edge}

// ParseKind maps a case-insensitive identifier onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Chrome:
		return Chrome, nil
	case Firefox:
		return Firefox, nil
	case Edge:
		return Edge, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBrowserKind, s)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Chrome, Firefox, Edge:
		return true
	}
	return false
}

// ChromiumFamily is true for engines that speak the Chrome DevTools Protocol.
func (k Kind) ChromiumFamily() bool {
	return k == Chrome || k == Edge
}

func (k Kind) String() string { return string(k) }

// Mode is the execution topology of a session.
type Mode int

const (
	Local Mode = iota
	Remote
)

func (m Mode) String() string {
	if m == Remote {
		return "remote"
	}
	return "local"
}

// Timeouts are the operating limits applied to a session after it starts.
type Timeouts struct {
	// ImplicitWait bounds how long element lookups wait for a match.
	ImplicitWait time.Duration
	Script       time.Duration
	PageLoad     time.Duration
}

// Level is the severity of a browser console entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARNING"
	LevelError Level = "SEVERE"
)

// LevelFromConsole maps the console API and log domain level names onto a Level.
func LevelFromConsole(s string) Level {
	switch strings.ToLower(s) {
	case "error", "assert", "severe":
		return LevelError
	case "warning", "warn":
		return LevelWarn
	case "debug", "trace", "verbose":
		return LevelDebug
	}
	return LevelInfo
}

// ConsoleEntry is one record produced by the page's console.
type ConsoleEntry struct {
	Timestamp time.Time
	Level     Level
	Text      string
}
