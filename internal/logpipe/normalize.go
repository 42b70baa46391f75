// internal/logpipe/normalize.go
package logpipe

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// mojibake maps text that was UTF-8 encoded and then decoded through a legacy
// code page back onto plain punctuation. The CP437 rows come from Windows
// consoles, the cp1252 rows from Latin-1 pipelines. The bare typographic
// characters are folded last so a single pass handles all three forms.
var mojibake = strings.NewReplacer(
	// CP437
	"ΓÇÿ", "'",
	"ΓÇÖ", "'",
	"ΓÇ£", `"`,
	"ΓÇ¥", `"`,
	"ΓÇô", "-",
	"ΓÇö", "-",
	"ΓÇó", "•",
	"ΓÇª", "...",
	"┬á", " ",
	// cp1252
	"â€˜", "'",
	"â€™", "'",
	"â€œ", `"`,
	"â€\u009d", `"`,
	"â€“", "-",
	"â€”", "-",
	"â€¢", "•",
	"â€¦", "...",
	"Â\u00a0", " ",
	// typographic
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
	"…", "...",
	"\u00a0", " ",
)

// Normalize repairs encoding artifacts in browser supplied text. It is
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = norm.NFC.String(s)
	s = mojibake.Replace(s)
	return strings.TrimSpace(s)
}
