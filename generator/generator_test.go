package generator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfops/document"
	"github.com/wudi/pdfops/layout"
	"github.com/wudi/pdfops/ops"
)

func load(t *testing.T, data []byte) *document.Handle {
	t.Helper()
	h, err := document.Load(context.Background(), data)
	require.NoError(t, err)
	return h
}

func text(t *testing.T, h *document.Handle, i int) string {
	t.Helper()
	c, err := h.PageContent(context.Background(), i)
	require.NoError(t, err)
	return string(c)
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func errKind(t *testing.T, err error) *ops.Error {
	t.Helper()
	var oe *ops.Error
	require.True(t, errors.As(err, &oe), "expected *ops.Error, got %v", err)
	return oe
}

func TestFromText(t *testing.T) {
	g := New(Config{Title: "Fallback"})
	out, err := g.FromText(context.Background(), "", "alpha\nbeta")
	require.NoError(t, err)

	h := load(t, out)
	require.Equal(t, 1, h.PageCount())
	assert.Equal(t, "Fallback", h.Title())
	c := text(t, h, 0)
	assert.Contains(t, c, "(Fallback) Tj")
	assert.Contains(t, c, "50 741.89 Td\n(alpha) Tj")
	assert.Contains(t, c, "50 724.89 Td\n(beta) Tj")

	p, err := h.Page(0)
	require.NoError(t, err)
	assert.InDelta(t, 595.28, p.Width, 1e-6)
	assert.InDelta(t, 841.89, p.Height, 1e-6)
}

func TestFromTextRequiresContent(t *testing.T) {
	_, err := New(Config{}).FromText(context.Background(), "", "")
	oe := errKind(t, err)
	assert.Equal(t, ops.GenerationFailed, oe.Kind)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestFromTextPageSizeAndFont(t *testing.T) {
	g := New(Config{PageSize: layout.Letter, FontSize: 20, Compress: true})
	out, err := g.FromText(context.Background(), "T", "body")
	require.NoError(t, err)
	h := load(t, out)
	p, err := h.Page(0)
	require.NoError(t, err)
	assert.Equal(t, 612.0, p.Width)
	c := text(t, h, 0)
	assert.Contains(t, c, "24 Tf\n50 742 Td\n(T) Tj")
	assert.Contains(t, c, "20 Tf\n50 692 Td\n(body) Tj")
}

func TestFromImages(t *testing.T) {
	out, err := New(Config{}).FromImages(context.Background(), [][]byte{pngImage(t, 40, 20), jpegImage(t, 10, 10)})
	require.NoError(t, err)
	h := load(t, out)
	require.Equal(t, 2, h.PageCount())
	assert.Contains(t, text(t, h, 0), "40 0 0 20 277.64 410.945 cm")
	assert.Contains(t, text(t, h, 1), "10 0 0 10 292.64 415.945 cm")
}

func TestFromImagesFailures(t *testing.T) {
	g := New(Config{})
	_, err := g.FromImages(context.Background(), nil)
	assert.True(t, ops.IsKind(err, ops.GenerationFailed))

	_, err = g.FromImages(context.Background(), [][]byte{pngImage(t, 4, 4), []byte("not an image")})
	oe := errKind(t, err)
	assert.Equal(t, ops.GenerationFailed, oe.Kind)
	assert.Equal(t, 1, oe.Position)
	assert.ErrorIs(t, err, document.ErrUnsupportedImage)
}

func TestFromTable(t *testing.T) {
	out, err := New(Config{}).FromTable(context.Background(), "Stock",
		[]string{"Item", "Count"},
		[][]string{{"widgets", "4"}, {strings.Repeat("z", 60), "9"}})
	require.NoError(t, err)
	c := text(t, load(t, out), 0)
	assert.Contains(t, c, "14 Tf\n50 791.89 Td\n(Stock) Tj")
	assert.Contains(t, c, "(widgets) Tj")
	assert.Contains(t, c, "("+strings.Repeat("z", 41)+"...) Tj")

	_, err = New(Config{}).FromTable(context.Background(), "Empty", []string{"a"}, nil)
	assert.True(t, ops.IsKind(err, ops.GenerationFailed))
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestCombinedSkipsBadImages(t *testing.T) {
	items := []Item{
		Text("", "hello"),
		Image([]byte("garbage")),
		Image(pngImage(t, 100, 100)),
		Table("", []string{"h"}, [][]string{{"cell"}}),
		Text("", ""),
	}
	out, err := New(Config{Title: "Doc"}).Combined(context.Background(), items)
	require.NoError(t, err)

	h := load(t, out)
	require.Equal(t, 3, h.PageCount())
	assert.Contains(t, text(t, h, 0), "(Doc) Tj")
	assert.Contains(t, text(t, h, 0), "(hello) Tj")
	assert.Contains(t, text(t, h, 1), "535.752 0 0 535.752 29.764 153.069 cm")
	assert.Contains(t, text(t, h, 2), "(cell) Tj")
	assert.Contains(t, text(t, h, 2), "14 Tf\n50 791.89 Td\n(Doc) Tj")
}

func TestCombinedKeepsTitleOnlyText(t *testing.T) {
	items := []Item{
		Text("Cover", ""),
		Text("", "body"),
	}
	out, err := New(Config{}).Combined(context.Background(), items)
	require.NoError(t, err)

	h := load(t, out)
	require.Equal(t, 2, h.PageCount())
	assert.Contains(t, text(t, h, 0), "16 Tf\n50 791.89 Td\n(Cover) Tj")
	assert.Contains(t, text(t, h, 1), "(body) Tj")
}

func TestCombinedMarkdownAndHTML(t *testing.T) {
	items := []Item{
		Markdown("# Heading\n\nbody text"),
		HTML("<h1>Web</h1><p>para</p>"),
	}
	out, err := New(Config{}).Combined(context.Background(), items)
	require.NoError(t, err)
	h := load(t, out)
	require.Equal(t, 2, h.PageCount())
	assert.Contains(t, text(t, h, 0), "(Heading) Tj")
	assert.Contains(t, text(t, h, 0), "(body text) Tj")
	assert.Contains(t, text(t, h, 1), "(Web) Tj")
	assert.Contains(t, text(t, h, 1), "(para) Tj")
}

func TestCombinedFailures(t *testing.T) {
	g := New(Config{})
	_, err := g.Combined(context.Background(), nil)
	assert.True(t, ops.IsKind(err, ops.GenerationFailed))

	_, err = g.Combined(context.Background(), []Item{Text("", "x"), {Kind: "video"}})
	oe := errKind(t, err)
	assert.Equal(t, ops.GenerationFailed, oe.Kind)
	assert.Equal(t, 1, oe.Position)

	_, err = g.Combined(context.Background(), []Item{Image([]byte("bad"))})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestCombinedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Combined(ctx, []Item{Text("", "x")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge(t *testing.T) {
	g := New(Config{})
	a, err := g.FromText(context.Background(), "A", "first")
	require.NoError(t, err)
	b, err := g.Combined(context.Background(), []Item{Text("B1", "x"), Text("B2", "y")})
	require.NoError(t, err)

	out, err := g.Merge(context.Background(), [][]byte{a, b})
	require.NoError(t, err)
	h := load(t, out)
	require.Equal(t, 3, h.PageCount())
	assert.Contains(t, text(t, h, 0), "(A) Tj")
	assert.Contains(t, text(t, h, 1), "(B1) Tj")
	assert.Contains(t, text(t, h, 2), "(B2) Tj")
}

func TestMergeInvalidSource(t *testing.T) {
	g := New(Config{})
	a, err := g.FromText(context.Background(), "A", "first")
	require.NoError(t, err)

	_, err = g.Merge(context.Background(), [][]byte{a, []byte("nope")})
	oe := errKind(t, err)
	assert.Equal(t, ops.InvalidDocument, oe.Kind)
	assert.Equal(t, 1, oe.Position)

	_, err = g.Merge(context.Background(), nil)
	assert.True(t, ops.IsKind(err, ops.GenerationFailed))
}
