package layout

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/pdfops/document"
)

// HTML renders source onto new pages of doc. h1-h6 become headings, p, li
// and div become paragraphs, pre is kept verbatim and table is laid out
// like Table. Markup outside the body is ignored.
func (e *Engine) HTML(doc *document.Handle, source string, fontSize float64) (Cursor, error) {
	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return Cursor{}, err
	}
	f, err := e.open(doc)
	if err != nil {
		return Cursor{}, err
	}
	w := &htmlWalker{f: f, size: e.size(fontSize)}
	if err := w.children(root, 0); err != nil {
		return Cursor{}, err
	}
	return f.close()
}

type htmlWalker struct {
	f    *frame
	size float64
}

func (w *htmlWalker) children(n *html.Node, indent float64) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := w.node(c, indent); err != nil {
			return err
		}
	}
	return nil
}

func (w *htmlWalker) node(n *html.Node, indent float64) error {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return w.f.paragraph(n.Data, w.size, indent, "")
	case html.ElementNode:
	default:
		return w.children(n, indent)
	}

	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Template:
		return nil
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		if err := w.f.heading(textContent(n, false), w.size); err != nil {
			return err
		}
		w.f.gap(w.size)
	case atom.P:
		if err := w.f.paragraph(textContent(n, false), w.size, indent, ""); err != nil {
			return err
		}
		w.f.gap(w.size)
	case atom.Div, atom.Section, atom.Article, atom.Blockquote:
		in := indent
		if n.DataAtom == atom.Blockquote {
			in += listIndent
		}
		if hasBlockChild(n) {
			return w.children(n, in)
		}
		return w.f.paragraph(textContent(n, false), w.size, in, "")
	case atom.Ul, atom.Ol:
		return w.list(n, indent)
	case atom.Li:
		return w.item(n, indent, "•")
	case atom.Pre:
		text := strings.Trim(textContent(n, true), "\n")
		if err := w.f.verbatim(splitLines(text), w.size, indent); err != nil {
			return err
		}
		w.f.gap(w.size)
	case atom.Hr:
		return w.f.rule(w.size)
	case atom.Table:
		headers, rows := tableCells(n)
		if err := w.f.table(headers, rows, w.size); err != nil {
			return err
		}
		w.f.gap(w.size)
	default:
		return w.children(n, indent)
	}
	return nil
}

func (w *htmlWalker) list(n *html.Node, indent float64) error {
	num := 1
	if n.DataAtom == atom.Ol {
		if s, err := strconv.Atoi(attr(n, "start")); err == nil {
			num = s
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		marker := "•"
		if n.DataAtom == atom.Ol {
			marker = strconv.Itoa(num) + "."
			num++
		}
		if err := w.item(c, indent, marker); err != nil {
			return err
		}
	}
	w.f.gap(w.size)
	return nil
}

// item draws a list item's own text, then any nested lists one level in.
func (w *htmlWalker) item(n *html.Node, indent float64, marker string) error {
	if err := w.f.paragraph(textContent(n, false), w.size, indent, marker); err != nil {
		return err
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
			if err := w.list(c, indent+listIndent); err != nil {
				return err
			}
		}
	}
	return nil
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.Table: true, atom.Pre: true, atom.Hr: true, atom.Blockquote: true,
	atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && blockAtoms[c.DataAtom] {
			return true
		}
	}
	return false
}

// textContent concatenates the text below n, skipping nested lists. With
// raw set, whitespace and line breaks are preserved.
func textContent(n *html.Node, raw bool) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				b.WriteString(c.Data)
			case c.Type != html.ElementNode:
			case c.DataAtom == atom.Ul || c.DataAtom == atom.Ol || c.DataAtom == atom.Script || c.DataAtom == atom.Style:
			case c.DataAtom == atom.Br:
				b.WriteByte('\n')
			default:
				walk(c)
			}
		}
	}
	walk(n)
	if raw {
		return b.String()
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tableCells collects rows of th/td text. A first row made only of th
// cells, or the rows of a thead, become the headers.
func tableCells(table *html.Node) (headers []string, rows [][]string) {
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inHead bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead:
				walk(c, true)
			case atom.Tbody, atom.Tfoot:
				walk(c, false)
			case atom.Tr:
				var cells []string
				allTH := true
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type != html.ElementNode || (cell.DataAtom != atom.Td && cell.DataAtom != atom.Th) {
						continue
					}
					if cell.DataAtom == atom.Td {
						allTH = false
					}
					cells = append(cells, textContent(cell, false))
				}
				if headers == nil && len(rows) == 0 && (inHead || (allTH && len(cells) > 0)) {
					headers = cells
					continue
				}
				rows = append(rows, cells)
			}
		}
	}
	walk(table, false)
	return headers, rows
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
