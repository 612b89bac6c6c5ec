// Package layout synthesizes pages from text, tables, images, markdown and
// HTML. Widths are estimated with a fixed average glyph width of 0.6 em
// rather than font metrics.
package layout

import (
	"math"
	"strings"

	"github.com/wudi/pdfops/builder"
	"github.com/wudi/pdfops/document"
	"github.com/wudi/pdfops/observability"
)

// PageSize is a page's width and height in points.
type PageSize struct {
	Width, Height float64
}

var (
	A4     = PageSize{Width: 595.28, Height: 841.89}
	A3     = PageSize{Width: 841.89, Height: 1190.55}
	Letter = PageSize{Width: 612, Height: 792}
	Legal  = PageSize{Width: 612, Height: 1008}
)

var pageSizes = map[string]PageSize{
	"a4":     A4,
	"a3":     A3,
	"letter": Letter,
	"legal":  Legal,
}

// PageSizeByName looks up a named paper size, case-insensitively.
func PageSizeByName(name string) (PageSize, bool) {
	s, ok := pageSizes[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

const (
	// bottomLimit is the lowest cursor position for plain text.
	bottomLimit = 50.0
	// tableReserve is added to the margin to get the table break limit.
	tableReserve = 50.0
	// bodyOffset is the distance from the top edge to the first body line.
	bodyOffset = 100.0
	// tableOffset is the gap between the table title and the first row.
	tableOffset = 30.0
	cellPadding = 5.0
	titleGrowth = 4.0
	// glyphWidth is the average glyph width as a fraction of the font size.
	glyphWidth = 0.6
	// imageMargin frames standalone images.
	imageMargin = 50.0
	// combinedImageFill is the share of the page a combined-mode image may
	// cover.
	combinedImageFill = 0.9
	listIndent        = 15.0
)

// Engine lays out content onto pages of a document. It holds configuration
// only and is safe for concurrent use.
type Engine struct {
	pageSize PageSize
	margin   float64
	fontSize float64
	maxImage int
	logger   observability.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithPageSize(size PageSize) Option {
	return func(e *Engine) { e.pageSize = size }
}

// WithMargin sets the page margin in points.
func WithMargin(m float64) Option {
	return func(e *Engine) { e.margin = m }
}

// WithDefaultFontSize sets the size used when an item carries none.
func WithDefaultFontSize(size float64) Option {
	return func(e *Engine) { e.fontSize = size }
}

// WithMaxImageDimension downscales embedded images whose longer side
// exceeds px pixels.
func WithMaxImageDimension(px int) Option {
	return func(e *Engine) { e.maxImage = px }
}

func WithLogger(l observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an Engine laying out A4 pages with a 50pt margin and
// 12pt text unless configured otherwise.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		pageSize: A4,
		margin:   50,
		fontSize: 12,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = observability.OrNop(e.logger)
	return e
}

func (e *Engine) PageSize() PageSize { return e.pageSize }

func (e *Engine) Margin() float64 { return e.margin }

func (e *Engine) DefaultFontSize() float64 { return e.fontSize }

func (e *Engine) size(fontSize float64) float64 {
	if fontSize > 0 {
		return fontSize
	}
	return e.fontSize
}

// LineAdvance is the vertical distance between consecutive lines.
func LineAdvance(fontSize float64) float64 { return fontSize + 5 }

// ColumnWidth divides tableWidth among max(cells, headers, 1) columns.
func ColumnWidth(tableWidth float64, cells, headers int) float64 {
	n := max(cells, headers, 1)
	return tableWidth / float64(n)
}

// CharBudget is the number of characters estimated to fit in width at
// fontSize.
func CharBudget(width, fontSize float64) int {
	if fontSize <= 0 {
		return 0
	}
	n := int(math.Floor(width / (fontSize * glyphWidth)))
	if n < 0 {
		return 0
	}
	return n
}

// TruncateCell shortens s to budget runes followed by "..." when it is
// longer than budget.
func TruncateCell(s string, budget int) string {
	r := []rune(s)
	if len(r) <= budget {
		return s
	}
	if budget < 0 {
		budget = 0
	}
	return string(r[:budget]) + "..."
}

// FitMode selects how an image is scaled onto its page.
type FitMode int

const (
	// Standalone fits inside a 50pt frame and never enlarges.
	Standalone FitMode = iota
	// Combined fills up to 90% of the page and may enlarge.
	Combined
)

// FitScale returns the factor applied to an iw x ih image on a page.
func FitScale(mode FitMode, page PageSize, iw, ih float64) float64 {
	if iw <= 0 || ih <= 0 {
		return 0
	}
	if mode == Combined {
		return math.Min(page.Width*combinedImageFill/iw, page.Height*combinedImageFill/ih)
	}
	return math.Min(math.Min((page.Width-2*imageMargin)/iw, (page.Height-2*imageMargin)/ih), 1)
}

// Center returns the lower-left corner that centers a w x h box on page.
func Center(page PageSize, w, h float64) (x, y float64) {
	return (page.Width - w) / 2, (page.Height - h) / 2
}

// WrapText splits s into lines of at most CharBudget(width, fontSize)
// runes, breaking at spaces where possible.
func WrapText(s string, width, fontSize float64) []string {
	budget := CharBudget(width, fontSize)
	if budget < 1 {
		budget = 1
	}
	var lines []string
	var line []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > budget {
			if len(line) > 0 {
				lines = append(lines, string(line))
				line = nil
			}
			lines = append(lines, string(w[:budget]))
			w = w[budget:]
		}
		switch {
		case len(line) == 0:
			line = append(line, w...)
		case len(line)+1+len(w) <= budget:
			line = append(line, ' ')
			line = append(line, w...)
		default:
			lines = append(lines, string(line))
			line = append([]rune(nil), w...)
		}
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return lines
}

// Cursor is the position drawing resumes from: a page index of the target
// document and a baseline height on that page.
type Cursor struct {
	Page int
	Y    float64
}

// frame draws onto one document, allocating pages as the cursor runs out
// of room.
type frame struct {
	e    *Engine
	doc  *document.Handle
	page int
	cb   *builder.ContentBuilder
	y    float64
}

// open starts a fresh page on doc.
func (e *Engine) open(doc *document.Handle) (*frame, error) {
	f := &frame{e: e, doc: doc, page: -1}
	if err := f.newPage(); err != nil {
		return nil, err
	}
	return f, nil
}

// newPage flushes pending drawing and continues on a new page with the
// cursor at the top margin.
func (f *frame) newPage() error {
	if err := f.flush(); err != nil {
		return err
	}
	f.page = f.doc.AddPage(f.e.pageSize.Width, f.e.pageSize.Height)
	cb, err := f.doc.NewContent(f.page)
	if err != nil {
		return err
	}
	f.cb = cb
	f.y = f.e.pageSize.Height - f.e.margin
	return nil
}

// breakBelow starts a new page when the cursor is under limit.
func (f *frame) breakBelow(limit float64) error {
	if f.y >= limit {
		return nil
	}
	f.e.logger.Debug("page break", observability.Int("page", f.page+1), observability.Float64("y", f.y))
	return f.newPage()
}

func (f *frame) flush() error {
	if f.cb == nil {
		return nil
	}
	err := f.doc.Draw(f.page, f.cb)
	f.cb = nil
	return err
}

func (f *frame) text(s string, x, y, size float64, font string) {
	if s == "" {
		return
	}
	f.cb.DrawText(s, x, y, builder.TextOptions{Font: font, FontSize: size, Color: builder.Black})
}

// close flushes the last page and reports the cursor.
func (f *frame) close() (Cursor, error) {
	if err := f.flush(); err != nil {
		return Cursor{}, err
	}
	return Cursor{Page: f.page, Y: f.y}, nil
}
