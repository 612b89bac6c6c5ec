package builder

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// EncodeWinAnsi maps text to WinAnsiEncoding, the encoding of the standard
// fonts. Runes outside the code page become '?'. Tabs become a space.
func EncodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == '\t' {
			out = append(out, ' ')
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok || b < 0x20 {
			out = append(out, '?')
			continue
		}
		out = append(out, b)
	}
	return out
}

// literal renders b as a PDF literal string, octal-escaping bytes that are
// not printable ASCII.
func literal(b []byte) string {
	var buf bytes.Buffer
	buf.WriteByte('(')
	for _, c := range b {
		switch {
		case c == '(' || c == ')' || c == '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case c < 0x20 || c > 0x7E:
			fmt.Fprintf(&buf, "\\%03o", c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
	return buf.String()
}
