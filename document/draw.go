package document

import (
	"fmt"

	"github.com/wudi/pdfops/builder"
	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/observability"
	"github.com/wudi/pdfops/optimize"
)

// Image is an embedded raster ready to be drawn on any page.
type Image struct {
	Ref    raw.RefObj
	Width  int // source pixels
	Height int
}

// NewContent returns a content builder whose resource names do not clash
// with those page i already uses.
func (h *Handle) NewContent(i int) (*builder.ContentBuilder, error) {
	page, err := h.pageDict(i)
	if err != nil {
		return nil, err
	}
	cb := builder.NewContentBuilder()
	res, ok := h.resolveDict(page, "Resources")
	if !ok {
		return cb, nil
	}
	for _, cat := range []string{"Font", "ExtGState", "XObject"} {
		if sub, ok := h.resolveDict(res, cat); ok {
			cb.Reserve(sub.Keys()...)
		}
	}
	return cb, nil
}

// Draw appends the builder's operators to page i as a new content stream.
// The page's existing content is wrapped in q/Q first so its graphics state
// cannot leak into the new drawing.
func (h *Handle) Draw(i int, cb *builder.ContentBuilder) error {
	page, err := h.pageDict(i)
	if err != nil {
		return err
	}
	if cb.Empty() {
		return nil
	}
	if err := h.mergeResources(page, cb.Resources()); err != nil {
		return fmt.Errorf("page %d: %w", i, err)
	}

	data := make([]byte, len(cb.Bytes()))
	copy(data, cb.Bytes())
	stream := h.raw.Add(raw.NewStream(raw.Dict(), data))

	existing := h.contentRefs(page)
	pageRef := h.pages[i].R
	contents := raw.NewArray()
	if len(existing) > 0 && !h.isolated[pageRef] {
		contents.Append(h.saveStateRef())
		for _, c := range existing {
			contents.Append(c)
		}
		contents.Append(h.restoreStateRef())
	} else {
		for _, c := range existing {
			contents.Append(c)
		}
	}
	contents.Append(stream)
	page.Set("Contents", contents)
	h.isolated[pageRef] = true
	return nil
}

func (h *Handle) contentRefs(page *raw.DictObj) []raw.Object {
	v, ok := page.Get("Contents")
	if !ok {
		return nil
	}
	switch c := h.raw.Resolve(v).(type) {
	case *raw.StreamObj:
		return []raw.Object{v}
	case *raw.ArrayObj:
		out := make([]raw.Object, 0, c.Len())
		out = append(out, c.Items...)
		return out
	}
	return nil
}

func (h *Handle) saveStateRef() raw.RefObj {
	if h.saveRef == nil {
		ref := h.raw.Add(raw.NewStream(raw.Dict(), []byte("q\n")))
		h.saveRef = &ref
	}
	return *h.saveRef
}

func (h *Handle) restoreStateRef() raw.RefObj {
	if h.restoreRef == nil {
		ref := h.raw.Add(raw.NewStream(raw.Dict(), []byte("\nQ\n")))
		h.restoreRef = &ref
	}
	return *h.restoreRef
}

// mergeResources gives the page its own resource dictionaries, copied from
// the inherited or shared ones, and adds the builder's entries.
func (h *Handle) mergeResources(page *raw.DictObj, add builder.Resources) error {
	res := raw.Dict()
	if old, ok := h.resolveDict(page, "Resources"); ok {
		for k, v := range old.KV {
			res.Set(k, v)
		}
	}
	category := func(name string) *raw.DictObj {
		sub := raw.Dict()
		if old, ok := h.resolveDict(res, name); ok {
			for k, v := range old.KV {
				sub.Set(k, v)
			}
		}
		res.Set(name, sub)
		return sub
	}
	set := func(sub *raw.DictObj, name string, ref raw.RefObj) error {
		if cur, ok := sub.Get(name); ok && cur != raw.Object(ref) {
			return fmt.Errorf("resource name %s already in use", name)
		}
		sub.Set(name, ref)
		return nil
	}
	if len(add.Fonts) > 0 {
		fonts := category("Font")
		for name, base := range add.Fonts {
			if err := set(fonts, name, h.fontRef(base)); err != nil {
				return err
			}
		}
	}
	if len(add.ExtGStates) > 0 {
		states := category("ExtGState")
		for name, alpha := range add.ExtGStates {
			if err := set(states, name, h.stateRef(alpha)); err != nil {
				return err
			}
		}
	}
	if len(add.XObjects) > 0 {
		xobjects := category("XObject")
		for name, ref := range add.XObjects {
			if err := set(xobjects, name, ref); err != nil {
				return err
			}
		}
	}
	page.Set("Resources", res)
	return nil
}

func (h *Handle) resolveDict(d *raw.DictObj, key string) (*raw.DictObj, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	return h.raw.ResolveDict(v)
}

func (h *Handle) fontRef(base string) raw.RefObj {
	if ref, ok := h.fonts[base]; ok {
		return ref
	}
	ref := h.raw.Add(builder.FontDict(base))
	h.fonts[base] = ref
	return ref
}

func (h *Handle) stateRef(alpha float64) raw.RefObj {
	if ref, ok := h.states[alpha]; ok {
		return ref
	}
	ref := h.raw.Add(builder.ExtGStateDict(alpha))
	h.states[alpha] = ref
	return ref
}

// EmbedImage decodes a PNG or JPEG and stores it as an image XObject.
// Images larger than maxDim on either side are downscaled first; a
// non-positive maxDim keeps the source resolution.
func (h *Handle) EmbedImage(data []byte, maxDim int) (Image, error) {
	img, format, err := builder.DecodeImage(data)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	b := img.Bounds()
	scaled, resized := optimize.Downscale(img, maxDim)
	stream, mask, err := builder.ImageXObject(scaled)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if mask != nil {
		stream.Dict.Set("SMask", h.raw.Add(mask))
	}
	ref := h.raw.Add(stream)
	h.logger.Debug("embedded image",
		observability.String("format", format),
		observability.Int("width", b.Dx()),
		observability.Int("height", b.Dy()),
		observability.Bool("downscaled", resized),
	)
	return Image{Ref: ref, Width: b.Dx(), Height: b.Dy()}, nil
}
