package layout

import (
	"strings"

	"github.com/wudi/pdfops/builder"
)

// Flowing content (markdown and HTML) is drawn top to bottom with these
// primitives. Each checks for a page break before it draws a line.

func (f *frame) heading(s string, size float64) error {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil
	}
	hs := size + titleGrowth
	for _, line := range WrapText(s, f.e.pageSize.Width-2*f.e.margin, hs) {
		if err := f.breakBelow(bottomLimit); err != nil {
			return err
		}
		f.text(line, f.e.margin, f.y, hs, builder.HelveticaBold)
		f.y -= LineAdvance(hs)
	}
	return nil
}

// paragraph word-wraps s between the left margin plus indent and the right
// margin. A non-empty marker is drawn in the indent on the first line.
func (f *frame) paragraph(s string, size, indent float64, marker string) error {
	x := f.e.margin + indent
	if marker != "" {
		x += listIndent
	}
	lines := WrapText(s, f.e.pageSize.Width-f.e.margin-x, size)
	for i, line := range lines {
		if err := f.breakBelow(bottomLimit); err != nil {
			return err
		}
		if i == 0 && marker != "" {
			f.text(marker, f.e.margin+indent, f.y, size, builder.Helvetica)
		}
		f.text(line, x, f.y, size, builder.Helvetica)
		f.y -= LineAdvance(size)
	}
	return nil
}

// verbatim draws lines as-is in a monospaced font.
func (f *frame) verbatim(lines []string, size, indent float64) error {
	for _, line := range lines {
		if err := f.breakBelow(bottomLimit); err != nil {
			return err
		}
		f.text(strings.TrimRight(line, " \t"), f.e.margin+indent, f.y, size, builder.Courier)
		f.y -= LineAdvance(size)
	}
	return nil
}

func (f *frame) rule(size float64) error {
	if err := f.breakBelow(bottomLimit); err != nil {
		return err
	}
	y := f.y + size/2
	f.cb.DrawLine(f.e.margin, y, f.e.pageSize.Width-f.e.margin, y, builder.Black, 0.5)
	f.y -= LineAdvance(size)
	return nil
}

func (f *frame) table(headers []string, rows [][]string, size float64) error {
	if err := f.breakBelow(f.e.margin + tableReserve); err != nil {
		return err
	}
	return f.e.grid(f, headers, rows, size)
}

// gap separates blocks by half a line.
func (f *frame) gap(size float64) {
	f.y -= LineAdvance(size) / 2
}
