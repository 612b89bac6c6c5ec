package layout

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/wudi/pdfops/document"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// Markdown renders source onto new pages of doc. Headings become bold
// title lines, paragraphs and list items are word-wrapped, code blocks are
// kept verbatim and GFM tables are laid out like Table.
func (e *Engine) Markdown(doc *document.Handle, source string, fontSize float64) (Cursor, error) {
	size := e.size(fontSize)
	src := []byte(source)
	root := markdown.Parser().Parse(text.NewReader(src))

	f, err := e.open(doc)
	if err != nil {
		return Cursor{}, err
	}
	w := &mdWalker{f: f, src: src, size: size}
	if err := w.blocks(root, 0); err != nil {
		return Cursor{}, err
	}
	return f.close()
}

type mdWalker struct {
	f    *frame
	src  []byte
	size float64
}

func (w *mdWalker) blocks(parent ast.Node, indent float64) error {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if err := w.block(n, indent, ""); err != nil {
			return err
		}
	}
	return nil
}

func (w *mdWalker) block(n ast.Node, indent float64, marker string) error {
	switch n := n.(type) {
	case *ast.Heading:
		if err := w.f.heading(w.inline(n), w.size); err != nil {
			return err
		}
		w.f.gap(w.size)
	case *ast.Paragraph, *ast.TextBlock:
		if err := w.f.paragraph(w.inline(n), w.size, indent, marker); err != nil {
			return err
		}
		if marker == "" && n.Kind() == ast.KindParagraph {
			w.f.gap(w.size)
		}
	case *ast.List:
		return w.list(n, indent)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if err := w.f.verbatim(w.lines(n), w.size, indent); err != nil {
			return err
		}
		w.f.gap(w.size)
	case *ast.Blockquote:
		return w.blocks(n, indent+listIndent)
	case *ast.ThematicBreak:
		return w.f.rule(w.size)
	case *east.Table:
		headers, rows := w.table(n)
		if err := w.f.table(headers, rows, w.size); err != nil {
			return err
		}
		w.f.gap(w.size)
	case *ast.HTMLBlock:
		// raw HTML inside markdown is not rendered
	default:
		return w.blocks(n, indent)
	}
	return nil
}

func (w *mdWalker) list(l *ast.List, indent float64) error {
	num := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if l.IsOrdered() {
			marker = strconv.Itoa(num) + "."
			num++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			m := ""
			childIndent := indent + listIndent
			if first {
				m, childIndent = marker, indent
				first = false
			}
			if err := w.block(c, childIndent, m); err != nil {
				return err
			}
		}
	}
	w.f.gap(w.size)
	return nil
}

func (w *mdWalker) table(t *east.Table) (headers []string, rows [][]string) {
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var cells []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, strings.TrimSpace(w.inline(c)))
		}
		if _, ok := r.(*east.TableHeader); ok {
			headers = cells
			continue
		}
		rows = append(rows, cells)
	}
	return headers, rows
}

// inline flattens the text of n's inline descendants.
func (w *mdWalker) inline(n ast.Node) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(w.src))
				if c.SoftLineBreak() || c.HardLineBreak() {
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(c.Value)
			case *ast.AutoLink:
				b.Write(c.URL(w.src))
			case *ast.RawHTML:
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func (w *mdWalker) lines(n ast.Node) []string {
	segs := n.Lines()
	out := make([]string, 0, segs.Len())
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(w.src)), "\r\n"))
	}
	return out
}
