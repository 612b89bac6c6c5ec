package layout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/wudi/pdfops/document"
)

func content(t *testing.T, doc *document.Handle, i int) string {
	t.Helper()
	data, err := doc.PageContent(context.Background(), i)
	if err != nil {
		t.Fatalf("page %d content: %v", i, err)
	}
	return string(data)
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{G: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestEngineDefaults(t *testing.T) {
	e := NewEngine()
	if e.PageSize() != A4 {
		t.Fatalf("page size = %v, want A4", e.PageSize())
	}
	if e.Margin() != 50 || e.DefaultFontSize() != 12 {
		t.Fatalf("margin %v font size %v", e.Margin(), e.DefaultFontSize())
	}

	e = NewEngine(WithPageSize(Letter), WithMargin(20), WithDefaultFontSize(9))
	if e.PageSize() != Letter || e.Margin() != 20 || e.DefaultFontSize() != 9 {
		t.Fatalf("options not applied: %+v", e)
	}
}

func TestPageSizeByName(t *testing.T) {
	cases := map[string]PageSize{
		"A4":      A4,
		" letter": Letter,
		"LEGAL":   Legal,
		"a3":      A3,
	}
	for name, want := range cases {
		got, ok := PageSizeByName(name)
		if !ok || got != want {
			t.Fatalf("PageSizeByName(%q) = %v, %v", name, got, ok)
		}
	}
	if _, ok := PageSizeByName("tabloid"); ok {
		t.Fatal("unknown size should not resolve")
	}
}

func TestMeasures(t *testing.T) {
	if got := LineAdvance(12); got != 17 {
		t.Fatalf("LineAdvance(12) = %v", got)
	}
	if got := ColumnWidth(400, 2, 4); got != 100 {
		t.Fatalf("ColumnWidth with headers = %v", got)
	}
	if got := ColumnWidth(400, 5, 4); got != 80 {
		t.Fatalf("ColumnWidth with wide row = %v", got)
	}
	if got := ColumnWidth(400, 0, 0); got != 400 {
		t.Fatalf("ColumnWidth empty = %v", got)
	}
	if got := CharBudget(100, 10); got != 16 {
		t.Fatalf("CharBudget(100, 10) = %d", got)
	}
	if got := CharBudget(100, 0); got != 0 {
		t.Fatalf("CharBudget with zero size = %d", got)
	}
}

func TestTruncateCell(t *testing.T) {
	cases := []struct {
		in     string
		budget int
		want   string
	}{
		{"short", 16, "short"},
		{"abcdefghijklmnopqrstuvwxyz", 16, "abcdefghijklmnop..."},
		{"ééééé", 3, "ééé..."},
		{"exact", 5, "exact"},
		{"x", 0, "..."},
	}
	for _, tc := range cases {
		if got := TruncateCell(tc.in, tc.budget); got != tc.want {
			t.Fatalf("TruncateCell(%q, %d) = %q, want %q", tc.in, tc.budget, got, tc.want)
		}
	}
}

func TestFitScale(t *testing.T) {
	if got := FitScale(Standalone, A4, 100, 100); got != 1 {
		t.Fatalf("small standalone image scaled by %v", got)
	}
	if got := FitScale(Standalone, A4, 1000, 1000); math.Abs(got-0.49528) > 1e-9 {
		t.Fatalf("large standalone scale = %v", got)
	}
	if got := FitScale(Combined, A4, 100, 100); math.Abs(got-5.35752) > 1e-9 {
		t.Fatalf("combined scale = %v", got)
	}
	if got := FitScale(Combined, A4, 0, 10); got != 0 {
		t.Fatalf("degenerate image scale = %v", got)
	}
	x, y := Center(PageSize{Width: 600, Height: 800}, 200, 100)
	if x != 200 || y != 350 {
		t.Fatalf("Center = %v, %v", x, y)
	}
}

func TestWrapText(t *testing.T) {
	got := WrapText("aaa bbb  ccc", 45, 10) // budget 7
	want := []string{"aaa bbb", "ccc"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("WrapText = %q, want %q", got, want)
	}
	got = WrapText("abcdefghij", 27, 10) // budget 4
	if strings.Join(got, "|") != "abcd|efgh|ij" {
		t.Fatalf("long word split = %q", got)
	}
	if len(WrapText("   ", 100, 10)) != 0 {
		t.Fatal("blank text should produce no lines")
	}
}

func TestTextBreaksPages(t *testing.T) {
	var lines []string
	for i := 1; i <= 40; i++ {
		lines = append(lines, fmt.Sprintf("Line %d", i))
	}
	e := NewEngine(WithPageSize(PageSize{Width: 595, Height: 700}))
	doc := document.New()
	cur, err := e.Text(doc, TextBlock{Title: "Notes", Body: strings.Join(lines, "\r\n"), FontSize: 12})
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("pages = %d, want 2", doc.PageCount())
	}
	if cur.Page != 1 || cur.Y != 531 {
		t.Fatalf("cursor = %+v, want page 1 at 531", cur)
	}

	first := content(t, doc, 0)
	if !strings.Contains(first, "16 Tf\n50 650 Td\n(Notes) Tj") {
		t.Fatalf("title missing:\n%s", first)
	}
	if !strings.Contains(first, "12 Tf\n50 600 Td\n(Line 1) Tj") {
		t.Fatalf("first body line not at H-100:\n%s", first)
	}
	if !strings.Contains(first, "(Line 33) Tj") || strings.Contains(first, "(Line 34) Tj") {
		t.Fatal("page 1 should end with line 33")
	}
	second := content(t, doc, 1)
	if !strings.Contains(second, "50 650 Td\n(Line 34) Tj") {
		t.Fatalf("line 34 should continue at H-margin on page 2:\n%s", second)
	}
	if !strings.Contains(second, "(Line 40) Tj") {
		t.Fatal("last line missing from page 2")
	}
}

func TestTextFitsOnePage(t *testing.T) {
	doc := document.New()
	if _, err := NewEngine().Text(doc, TextBlock{Body: "one\ntwo"}); err != nil {
		t.Fatalf("Text: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
}

func TestTableLayout(t *testing.T) {
	doc := document.New()
	long := strings.Repeat("a", 40)
	_, err := NewEngine().Table(doc, TableBlock{
		Title:    "Inventory",
		Headers:  []string{"Name", "Qty"},
		Rows:     [][]string{{"bolt", long, "x"}},
		FontSize: 10,
	})
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	c := content(t, doc, 0)
	for _, want := range []string{
		"14 Tf\n50 791.89 Td\n(Inventory) Tj",
		"55 761.89 Td\n(Name) Tj",
		"302.64 761.89 Td\n(Qty) Tj",
		"55 741.89 Td\n(bolt) Tj",
		"220.093 741.89 Td\n(" + strings.Repeat("a", 27) + "...) Tj",
		"385.187 741.89 Td\n(x) Tj",
	} {
		if !strings.Contains(c, want) {
			t.Fatalf("missing %q in:\n%s", want, c)
		}
	}
}

func TestTableBreaksPages(t *testing.T) {
	rows := make([][]string, 60)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("r%d", i+1)}
	}
	doc := document.New()
	cur, err := NewEngine().Table(doc, TableBlock{Rows: rows, FontSize: 10})
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if doc.PageCount() != 2 || cur.Page != 1 {
		t.Fatalf("pages = %d, cursor %+v", doc.PageCount(), cur)
	}
	if !strings.Contains(content(t, doc, 1), "55 791.89 Td\n(r46) Tj") {
		t.Fatalf("row 46 should open page 2:\n%s", content(t, doc, 1))
	}
}

func TestImagePlacement(t *testing.T) {
	data := pngOf(t, 200, 100)
	doc := document.New()
	e := NewEngine()
	if _, err := e.Image(doc, data, Standalone); err != nil {
		t.Fatalf("standalone: %v", err)
	}
	if _, err := e.Image(doc, data, Combined); err != nil {
		t.Fatalf("combined: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	if c := content(t, doc, 0); !strings.Contains(c, "200 0 0 100 197.64 370.945 cm") {
		t.Fatalf("standalone placement:\n%s", c)
	}
	if c := content(t, doc, 1); !strings.Contains(c, "535.752 0 0 267.876 29.764 287.007 cm") {
		t.Fatalf("combined placement:\n%s", c)
	}
}

func TestImageRejectsUnknownFormat(t *testing.T) {
	doc := document.New()
	_, err := NewEngine().Image(doc, []byte("GIF89a"), Standalone)
	if !errors.Is(err, document.ErrUnsupportedImage) {
		t.Fatalf("err = %v", err)
	}
	if doc.PageCount() != 0 {
		t.Fatal("failed image must not add a page")
	}
}

func TestMarkdown(t *testing.T) {
	src := "# Title\n\nSome *emphasis* and `code`.\n\n- first\n- second\n\n1. one\n2. two\n\n```\nx := 1\n```\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"
	doc := document.New()
	if _, err := NewEngine().Markdown(doc, src, 0); err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	c := content(t, doc, 0)
	for _, want := range []string{
		"16 Tf\n50 791.89 Td\n(Title) Tj",
		"(Some emphasis and code.) Tj",
		"(\\225) Tj",
		"(first) Tj",
		"(1.) Tj",
		"(two) Tj",
		"(x := 1) Tj",
		"(a) Tj",
		"(2) Tj",
	} {
		if !strings.Contains(c, want) {
			t.Fatalf("missing %q in:\n%s", want, c)
		}
	}
}

func TestMarkdownContinuesOnNewPages(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "Paragraph %d.\n\n", i)
	}
	doc := document.New()
	cur, err := NewEngine().Markdown(doc, b.String(), 12)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if doc.PageCount() < 2 || cur.Page != doc.PageCount()-1 {
		t.Fatalf("pages = %d, cursor %+v", doc.PageCount(), cur)
	}
	if !strings.Contains(content(t, doc, cur.Page), "(Paragraph 79.) Tj") {
		t.Fatal("last paragraph should be on the last page")
	}
}

func TestHTML(t *testing.T) {
	src := `<html><head><title>ignored</title><style>p{}</style></head><body>
<h2>Hello</h2>
<p>Para <b>text</b></p>
<ul><li>one<ul><li>two</li></ul></li></ul>
<ol start="3"><li>three</li></ol>
<pre>a
  b</pre>
<div>loose div</div>
<table><tr><th>H1</th><th>H2</th></tr><tr><td>x</td><td>y</td></tr></table>
</body></html>`
	doc := document.New()
	if _, err := NewEngine().HTML(doc, src, 0); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	c := content(t, doc, 0)
	for _, want := range []string{
		"(Hello) Tj",
		"(Para text) Tj",
		"(one) Tj",
		"(two) Tj",
		"(3.) Tj",
		"(  b) Tj",
		"(loose div) Tj",
		"(H1) Tj",
		"(y) Tj",
	} {
		if !strings.Contains(c, want) {
			t.Fatalf("missing %q in:\n%s", want, c)
		}
	}
	for _, unwanted := range []string{"ignored", "p{}", "(one two)"} {
		if strings.Contains(c, unwanted) {
			t.Fatalf("unexpected %q in:\n%s", unwanted, c)
		}
	}
}
