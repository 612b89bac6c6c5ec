package layout

import (
	"fmt"

	"github.com/wudi/pdfops/builder"
	"github.com/wudi/pdfops/document"
	"github.com/wudi/pdfops/observability"
)

// Image embeds data (PNG, then JPEG) and draws it centered on a new page
// of doc. Undecodable data yields an error wrapping
// document.ErrUnsupportedImage and leaves doc without a new page.
func (e *Engine) Image(doc *document.Handle, data []byte, mode FitMode) (Cursor, error) {
	img, err := doc.EmbedImage(data, e.maxImage)
	if err != nil {
		return Cursor{}, fmt.Errorf("embed image: %w", err)
	}
	scale := FitScale(mode, e.pageSize, float64(img.Width), float64(img.Height))
	w, h := float64(img.Width)*scale, float64(img.Height)*scale
	x, y := Center(e.pageSize, w, h)

	f, err := e.open(doc)
	if err != nil {
		return Cursor{}, err
	}
	f.cb.DrawImage(img.Ref, x, y, w, h, builder.ImageOptions{})
	e.logger.Debug("placed image",
		observability.Int("page", f.page+1),
		observability.Float64("scale", scale),
	)
	f.y = y
	return f.close()
}
