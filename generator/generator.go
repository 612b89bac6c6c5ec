// Package generator builds new documents from content items.
package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfops/document"
	"github.com/wudi/pdfops/layout"
	"github.com/wudi/pdfops/observability"
	"github.com/wudi/pdfops/ops"
)

// Font sizes used when neither the item nor the Config sets one.
const (
	DefaultTextFontSize  = 12.0
	DefaultTableFontSize = 10.0
)

var (
	ErrNoContent = errors.New("nothing to render")
	ErrNoRows    = errors.New("table has no rows")
)

// Config controls generation. The zero value lays out A4 pages.
type Config struct {
	PageSize layout.PageSize
	// FontSize overrides the per-kind defaults.
	FontSize float64
	// Title is used by text and table items without a title of their own,
	// and becomes the document's Info title.
	Title             string
	Compress          bool
	MaxImageDimension int
	Logger            observability.Logger
}

// Generator renders items into documents. It is safe for concurrent use.
type Generator struct {
	cfg    Config
	engine *layout.Engine
	logger observability.Logger
}

func New(cfg Config) *Generator {
	if cfg.PageSize == (layout.PageSize{}) {
		cfg.PageSize = layout.A4
	}
	logger := observability.OrNop(cfg.Logger)
	return &Generator{
		cfg:    cfg,
		logger: logger,
		engine: layout.NewEngine(
			layout.WithPageSize(cfg.PageSize),
			layout.WithDefaultFontSize(DefaultTextFontSize),
			layout.WithMaxImageDimension(cfg.MaxImageDimension),
			layout.WithLogger(logger),
		),
	}
}

// FromText renders body as one line per "\n" under title.
func (g *Generator) FromText(ctx context.Context, title, body string) ([]byte, error) {
	const op = "text"
	item := Text(title, body)
	if item.Title == "" {
		item.Title = g.cfg.Title
	}
	if item.Title == "" && body == "" {
		return nil, failed(op, ops.NoPosition, ErrNoContent)
	}
	doc := g.newDocument()
	if err := g.render(doc, item, true); err != nil {
		return nil, failed(op, ops.NoPosition, err)
	}
	return g.save(ctx, op, doc)
}

// FromImages puts each image on its own page, scaled to fit within a 50pt
// frame without enlarging. The first undecodable image fails the call.
func (g *Generator) FromImages(ctx context.Context, images [][]byte) ([]byte, error) {
	const op = "images"
	if len(images) == 0 {
		return nil, failed(op, ops.NoPosition, ErrNoContent)
	}
	doc := g.newDocument()
	for i, data := range images {
		if err := ctx.Err(); err != nil {
			return nil, failed(op, i, err)
		}
		if _, err := g.engine.Image(doc, data, layout.Standalone); err != nil {
			return nil, failed(op, i, err)
		}
	}
	return g.save(ctx, op, doc)
}

// FromTable renders rows under headers, truncating cells that do not fit
// their column.
func (g *Generator) FromTable(ctx context.Context, title string, headers []string, rows [][]string) ([]byte, error) {
	const op = "table"
	if len(rows) == 0 {
		return nil, failed(op, ops.NoPosition, ErrNoRows)
	}
	item := Table(title, headers, rows)
	if item.Title == "" {
		item.Title = g.cfg.Title
	}
	doc := g.newDocument()
	if err := g.render(doc, item, true); err != nil {
		return nil, failed(op, ops.NoPosition, err)
	}
	return g.save(ctx, op, doc)
}

// Combined renders items in order, each starting on a fresh page. Images
// that cannot be decoded are skipped with a warning; any other failure
// aborts.
func (g *Generator) Combined(ctx context.Context, items []Item) ([]byte, error) {
	const op = "combined"
	if len(items) == 0 {
		return nil, failed(op, ops.NoPosition, ErrNoContent)
	}
	doc := g.newDocument()
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, failed(op, i, err)
		}
		if item.Kind == KindText && item.Title == "" && item.Text == "" {
			continue
		}
		if item.Title == "" && (item.Kind == KindText || item.Kind == KindTable) {
			item.Title = g.cfg.Title
		}
		err := g.render(doc, item, false)
		if errors.Is(err, document.ErrUnsupportedImage) {
			g.logger.Warn("skipping undecodable image",
				observability.Int("position", i),
				observability.Error("error", err),
			)
			continue
		}
		if err != nil {
			return nil, failed(op, i, err)
		}
	}
	if doc.PageCount() == 0 {
		return nil, failed(op, ops.NoPosition, ErrNoContent)
	}
	return g.save(ctx, op, doc)
}

// Merge concatenates the pages of every source in order.
func (g *Generator) Merge(ctx context.Context, sources [][]byte) ([]byte, error) {
	const op = "merge"
	if len(sources) == 0 {
		return nil, failed(op, ops.NoPosition, ErrNoContent)
	}
	out := g.newDocument()
	for i, data := range sources {
		src, err := document.Load(ctx, data, document.WithLogger(g.logger))
		if err != nil {
			return nil, ops.Wrap(ops.InvalidDocument, op, i, err)
		}
		indices := make([]int, src.PageCount())
		for n := range indices {
			indices[n] = n
		}
		if err := out.CopyPagesFrom(src, indices); err != nil {
			return nil, failed(op, i, err)
		}
		g.logger.Debug("merged source",
			observability.Int("position", i),
			observability.Int("pages", src.PageCount()),
		)
	}
	return g.save(ctx, op, out)
}

func (g *Generator) newDocument() *document.Handle {
	doc := document.New()
	doc.SetLogger(g.logger)
	if g.cfg.Title != "" {
		doc.SetTitle(g.cfg.Title)
	}
	return doc
}

// render lays out one item. Empty items draw nothing.
func (g *Generator) render(doc *document.Handle, item Item, standalone bool) error {
	var err error
	switch item.Kind {
	case KindText:
		if item.Title == "" && item.Text == "" {
			return nil
		}
		_, err = g.engine.Text(doc, layout.TextBlock{
			Title:    item.Title,
			Body:     item.Text,
			FontSize: g.fontSize(item, DefaultTextFontSize),
		})
	case KindTable:
		if len(item.Headers) == 0 && len(item.Rows) == 0 {
			return nil
		}
		_, err = g.engine.Table(doc, layout.TableBlock{
			Title:    item.Title,
			Headers:  item.Headers,
			Rows:     item.Rows,
			FontSize: g.fontSize(item, DefaultTableFontSize),
		})
	case KindImage:
		if len(item.Image) == 0 {
			return nil
		}
		mode := layout.Combined
		if standalone {
			mode = layout.Standalone
		}
		_, err = g.engine.Image(doc, item.Image, mode)
	case KindMarkdown:
		if item.Source == "" {
			return nil
		}
		_, err = g.engine.Markdown(doc, item.Source, g.fontSize(item, DefaultTextFontSize))
	case KindHTML:
		if item.Source == "" {
			return nil
		}
		_, err = g.engine.HTML(doc, item.Source, g.fontSize(item, DefaultTextFontSize))
	default:
		return fmt.Errorf("unknown item type %q", item.Kind)
	}
	return err
}

func (g *Generator) fontSize(item Item, def float64) float64 {
	switch {
	case item.FontSize > 0:
		return item.FontSize
	case g.cfg.FontSize > 0:
		return g.cfg.FontSize
	}
	return def
}

func (g *Generator) save(ctx context.Context, op string, doc *document.Handle) ([]byte, error) {
	out, err := doc.Bytes(ctx, document.SaveOptions{Compress: g.cfg.Compress})
	if err != nil {
		return nil, failed(op, ops.NoPosition, err)
	}
	g.logger.Info("document generated",
		observability.String("op", op),
		observability.Int("pages", doc.PageCount()),
		observability.Int("bytes", len(out)),
	)
	return out, nil
}

func failed(op string, pos int, err error) error {
	return ops.Wrap(ops.GenerationFailed, op, pos, err)
}
