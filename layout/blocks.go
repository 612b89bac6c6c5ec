package layout

import (
	"strings"

	"github.com/wudi/pdfops/builder"
	"github.com/wudi/pdfops/document"
)

// TextBlock is a titled run of lines.
type TextBlock struct {
	Title    string
	Body     string
	FontSize float64 // zero uses the engine default
}

// TableBlock is a titled grid of cells.
type TableBlock struct {
	Title    string
	Headers  []string
	Rows     [][]string
	FontSize float64
}

// Text draws b starting on a new page of doc. Lines are taken verbatim
// from the body, one per "\n".
func (e *Engine) Text(doc *document.Handle, b TextBlock) (Cursor, error) {
	size := e.size(b.FontSize)
	f, err := e.open(doc)
	if err != nil {
		return Cursor{}, err
	}
	e.title(f, b.Title, size)
	f.y = e.pageSize.Height - bodyOffset
	for _, line := range splitLines(b.Body) {
		if err := f.breakBelow(bottomLimit); err != nil {
			return Cursor{}, err
		}
		f.text(line, e.margin, f.y, size, builder.Helvetica)
		f.y -= LineAdvance(size)
	}
	return f.close()
}

// Table draws b starting on a new page of doc. The header row is drawn
// once; data rows continue onto new pages as needed.
func (e *Engine) Table(doc *document.Handle, b TableBlock) (Cursor, error) {
	size := e.size(b.FontSize)
	f, err := e.open(doc)
	if err != nil {
		return Cursor{}, err
	}
	e.title(f, b.Title, size)
	f.y = e.pageSize.Height - e.margin - tableOffset
	if err := e.grid(f, b.Headers, b.Rows, size); err != nil {
		return Cursor{}, err
	}
	return f.close()
}

func (e *Engine) title(f *frame, title string, size float64) {
	f.text(title, e.margin, e.pageSize.Height-e.margin, size+titleGrowth, builder.Helvetica)
}

// grid draws headers and rows from the current cursor.
func (e *Engine) grid(f *frame, headers []string, rows [][]string, size float64) error {
	tableWidth := e.pageSize.Width - 2*e.margin
	if len(headers) > 0 {
		colW := tableWidth / float64(len(headers))
		for i, h := range headers {
			f.text(h, e.margin+float64(i)*colW+cellPadding, f.y, size, builder.Helvetica)
		}
		f.y -= size + 10
	}
	for _, row := range rows {
		if err := f.breakBelow(e.margin + tableReserve); err != nil {
			return err
		}
		colW := ColumnWidth(tableWidth, len(row), len(headers))
		budget := CharBudget(colW, size)
		for i, cell := range row {
			f.text(TruncateCell(cell, budget), e.margin+float64(i)*colW+cellPadding, f.y, size, builder.Helvetica)
		}
		f.y -= LineAdvance(size)
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
