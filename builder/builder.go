package builder

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/wudi/pdfops/ir/raw"
)

// Resource names carry a prefix so they never collide with names already
// present in an existing page's resource dictionary.
const (
	fontPrefix  = "OpF"
	statePrefix = "OpGS"
	imagePrefix = "OpIm"
)

// Standard fonts available to DrawText without embedding.
const (
	Helvetica     = "Helvetica"
	HelveticaBold = "Helvetica-Bold"
	Courier       = "Courier"
)

// Color is an RGB color with components in 0..1.
type Color struct {
	R, G, B float64
}

var (
	Black = Color{0, 0, 0}
	White = Color{1, 1, 1}
)

// TextOptions configures text drawing.
type TextOptions struct {
	Font     string // base font, defaults to Helvetica
	FontSize float64
	Color    Color
	Opacity  *float64
}

// RectOptions configures rectangle drawing. A rectangle with neither Fill
// nor Stroke set is stroked.
type RectOptions struct {
	FillColor   Color
	StrokeColor Color
	LineWidth   float64
	Fill        bool
	Stroke      bool
	Opacity     *float64
}

// ImageOptions configures image drawing.
type ImageOptions struct {
	Opacity *float64
}

// Alpha returns a pointer for the Opacity option fields.
func Alpha(v float64) *float64 { return &v }

// Resources lists what a content stream refers to by name.
type Resources struct {
	Fonts      map[string]string     // resource name -> base font
	ExtGStates map[string]float64    // resource name -> alpha
	XObjects   map[string]raw.RefObj // resource name -> image
}

// ContentBuilder accumulates content-stream operators for one page. The
// output is always balanced: every q has its Q.
type ContentBuilder struct {
	buf      bytes.Buffer
	res      Resources
	alphas   map[float64]string
	reserved map[string]bool
}

func NewContentBuilder() *ContentBuilder {
	return &ContentBuilder{
		res: Resources{
			Fonts:      make(map[string]string),
			ExtGStates: make(map[string]float64),
			XObjects:   make(map[string]raw.RefObj),
		},
		alphas:   make(map[float64]string),
		reserved: make(map[string]bool),
	}
}

// Reserve keeps names from being allocated, typically the resource names a
// page already uses.
func (b *ContentBuilder) Reserve(names ...string) *ContentBuilder {
	for _, n := range names {
		b.reserved[n] = true
	}
	return b
}

func (b *ContentBuilder) allocate(prefix string, taken func(string) bool) string {
	for i := 1; ; i++ {
		name := prefix + strconv.Itoa(i)
		if !b.reserved[name] && !taken(name) {
			return name
		}
	}
}

// Bytes returns the operators written so far.
func (b *ContentBuilder) Bytes() []byte { return b.buf.Bytes() }

func (b *ContentBuilder) Resources() Resources { return b.res }

// Empty reports whether nothing has been drawn.
func (b *ContentBuilder) Empty() bool { return b.buf.Len() == 0 }

// DrawText writes a single line of text with its baseline origin at (x, y).
func (b *ContentBuilder) DrawText(text string, x, y float64, opts TextOptions) *ContentBuilder {
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	font := b.fontName(opts.Font)
	b.op("q")
	b.opacity(opts.Opacity)
	b.op(num(opts.Color.R), num(opts.Color.G), num(opts.Color.B), "rg")
	b.op("BT")
	b.op("/"+font, num(size), "Tf")
	b.op(num(x), num(y), "Td")
	b.op(literal(EncodeWinAnsi(text)), "Tj")
	b.op("ET")
	b.op("Q")
	return b
}

func (b *ContentBuilder) DrawRectangle(x, y, width, height float64, opts RectOptions) *ContentBuilder {
	if !opts.Fill && !opts.Stroke {
		opts.Stroke = true
	}
	b.op("q")
	b.opacity(opts.Opacity)
	if opts.Fill {
		b.op(num(opts.FillColor.R), num(opts.FillColor.G), num(opts.FillColor.B), "rg")
	}
	if opts.Stroke {
		b.op(num(opts.StrokeColor.R), num(opts.StrokeColor.G), num(opts.StrokeColor.B), "RG")
		lw := opts.LineWidth
		if lw <= 0 {
			lw = 1
		}
		b.op(num(lw), "w")
	}
	b.op(num(x), num(y), num(width), num(height), "re")
	switch {
	case opts.Fill && opts.Stroke:
		b.op("B")
	case opts.Fill:
		b.op("f")
	default:
		b.op("S")
	}
	b.op("Q")
	return b
}

func (b *ContentBuilder) DrawLine(x1, y1, x2, y2 float64, color Color, width float64) *ContentBuilder {
	if width <= 0 {
		width = 1
	}
	b.op("q")
	b.op(num(color.R), num(color.G), num(color.B), "RG")
	b.op(num(width), "w")
	b.op(num(x1), num(y1), "m")
	b.op(num(x2), num(y2), "l")
	b.op("S")
	b.op("Q")
	return b
}

// DrawImage paints the image XObject ref scaled to width x height with its
// lower-left corner at (x, y).
func (b *ContentBuilder) DrawImage(ref raw.RefObj, x, y, width, height float64, opts ImageOptions) *ContentBuilder {
	name := ""
	for n, r := range b.res.XObjects {
		if r == ref {
			name = n
			break
		}
	}
	if name == "" {
		name = b.allocate(imagePrefix, func(n string) bool { _, ok := b.res.XObjects[n]; return ok })
		b.res.XObjects[name] = ref
	}
	b.op("q")
	b.opacity(opts.Opacity)
	b.op(num(width), "0", "0", num(height), num(x), num(y), "cm")
	b.op("/"+name, "Do")
	b.op("Q")
	return b
}

func (b *ContentBuilder) fontName(base string) string {
	if base == "" {
		base = Helvetica
	}
	for name, f := range b.res.Fonts {
		if f == base {
			return name
		}
	}
	name := b.allocate(fontPrefix, func(n string) bool { _, ok := b.res.Fonts[n]; return ok })
	b.res.Fonts[name] = base
	return name
}

func (b *ContentBuilder) opacity(alpha *float64) {
	if alpha == nil {
		return
	}
	a := clamp01(*alpha)
	name, ok := b.alphas[a]
	if !ok {
		name = b.allocate(statePrefix, func(n string) bool { _, ok := b.res.ExtGStates[n]; return ok })
		b.alphas[a] = name
		b.res.ExtGStates[name] = a
	}
	b.op("/"+name, "gs")
}

func (b *ContentBuilder) op(parts ...string) {
	for i, p := range parts {
		if i > 0 {
			b.buf.WriteByte(' ')
		}
		b.buf.WriteString(p)
	}
	b.buf.WriteByte('\n')
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func num(f float64) string {
	s := strconv.FormatFloat(f, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// FontDict returns the dictionary for a standard Type1 font.
func FontDict(base string) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral("Type1"))
	d.Set("BaseFont", raw.NameLiteral(base))
	d.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	return d
}

// ExtGStateDict returns a graphics state setting both fill and stroke alpha.
func ExtGStateDict(alpha float64) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("ExtGState"))
	d.Set("ca", raw.Number(alpha))
	d.Set("CA", raw.Number(alpha))
	return d
}
