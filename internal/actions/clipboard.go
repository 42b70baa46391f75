// internal/actions/clipboard.go
package actions

import "github.com/atotto/clipboard"

// Clipboard is the system clipboard Paste writes to.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard uses the host clipboard. It fails on machines without one
// (no xclip/xsel/wl-clipboard on Linux), which Paste treats as headless.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return errClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}
