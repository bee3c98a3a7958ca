package sqlutil

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// EscapeUnicode makes a string safe to embed in an escaped string literal. Control
// characters other than tab, carriage return and newline become \xHH, every non-ASCII
// character becomes \uHHHH (a surrogate pair above the BMP).
func EscapeUnicode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t' || r == '\r' || r == '\n':
			b.WriteRune(r)
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r > 0xffff:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
		case r > 0x7f:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
