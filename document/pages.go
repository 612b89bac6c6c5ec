package document

import (
	"context"
	"fmt"
	"sort"

	"github.com/wudi/pdfops/filters"
	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/observability"
)

// Letter is used when a page carries no usable MediaBox.
var defaultMediaBox = [4]float64{0, 0, 612, 792}

var inheritable = []string{"MediaBox", "CropBox", "Resources", "Rotate"}

// Page is a read-only view of one page.
type Page struct {
	Index    int
	Width    float64
	Height   float64
	Rotation int
}

// flattenPageTree collects the leaves of the page tree in order, pushes
// inherited attributes down into each page and re-parents every page under
// the root Pages node, which becomes the only intermediate node.
func (h *Handle) flattenPageTree() error {
	cat, err := h.raw.Catalog()
	if err != nil {
		return err
	}
	rootObj, ok := cat.Get("Pages")
	if !ok {
		return ErrNoPageTree
	}
	rootRef, isRef := rootObj.(raw.RefObj)
	root, ok := h.raw.ResolveDict(rootObj)
	if !ok {
		return ErrNoPageTree
	}
	if !isRef {
		rootRef = h.raw.Add(root)
		cat.Set("Pages", rootRef)
	}

	var pages []raw.RefObj
	visited := make(map[raw.ObjectRef]bool)
	var walk func(node *raw.DictObj, inherited map[string]raw.Object, depth int)
	walk = func(node *raw.DictObj, inherited map[string]raw.Object, depth int) {
		if depth > 64 {
			return
		}
		attrs := make(map[string]raw.Object, len(inheritable))
		for k, v := range inherited {
			attrs[k] = v
		}
		for _, k := range inheritable {
			if v, ok := node.Get(k); ok {
				attrs[k] = v
			}
		}
		kidsObj, _ := node.Get("Kids")
		kids, _ := h.raw.ResolveArray(kidsObj)
		if kids == nil {
			return
		}
		for _, kid := range kids.Items {
			ref, isRef := kid.(raw.RefObj)
			dict, ok := h.raw.ResolveDict(kid)
			if !ok {
				continue
			}
			if isRef {
				if visited[ref.R] {
					continue
				}
				visited[ref.R] = true
			}
			typ, _ := dict.Name("Type")
			_, hasKids := dict.Get("Kids")
			if typ == "Pages" || (typ != "Page" && hasKids) {
				walk(dict, attrs, depth+1)
				continue
			}
			for k, v := range attrs {
				if _, ok := dict.Get(k); !ok {
					dict.Set(k, v)
				}
			}
			if !isRef {
				ref = h.raw.Add(dict)
			}
			pages = append(pages, ref)
		}
	}
	visited[rootRef.R] = true
	walk(root, nil, 0)

	for _, k := range inheritable {
		root.Delete(k)
	}
	h.pagesRef = rootRef
	h.pages = pages
	h.syncPageTree()
	h.logger.Debug("flattened page tree", observability.Int("pages", len(pages)))
	return nil
}

// syncPageTree writes the page list back into the root Pages node.
func (h *Handle) syncPageTree() {
	root, _ := h.raw.ResolveDict(h.pagesRef)
	kids := raw.NewArray()
	for _, ref := range h.pages {
		kids.Append(ref)
		if page, ok := h.raw.ResolveDict(ref); ok {
			page.Set("Parent", h.pagesRef)
		}
	}
	root.Set("Kids", kids)
	root.Set("Count", raw.NumberInt(int64(len(h.pages))))
}

func (h *Handle) PageCount() int { return len(h.pages) }

func (h *Handle) pageDict(i int) (*raw.DictObj, error) {
	if i < 0 || i >= len(h.pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, i, len(h.pages))
	}
	d, ok := h.raw.ResolveDict(h.pages[i])
	if !ok {
		return nil, fmt.Errorf("page %d is not a dictionary", i)
	}
	return d, nil
}

// Page returns the geometry of page i (0-based).
func (h *Handle) Page(i int) (Page, error) {
	d, err := h.pageDict(i)
	if err != nil {
		return Page{}, err
	}
	box := h.mediaBox(d)
	rot := 0
	if v, ok := d.Get("Rotate"); ok {
		if n, ok := h.raw.Int(v); ok {
			rot = normalizeRotation(int(n))
		}
	}
	return Page{
		Index:    i,
		Width:    box[2] - box[0],
		Height:   box[3] - box[1],
		Rotation: rot,
	}, nil
}

func (h *Handle) mediaBox(page *raw.DictObj) [4]float64 {
	v, ok := page.Get("MediaBox")
	if !ok {
		return defaultMediaBox
	}
	arr, ok := h.raw.ResolveArray(v)
	if !ok || arr.Len() != 4 {
		return defaultMediaBox
	}
	var box [4]float64
	for i, item := range arr.Items {
		f, ok := h.raw.Float(item)
		if !ok {
			return defaultMediaBox
		}
		box[i] = f
	}
	if box[0] > box[2] {
		box[0], box[2] = box[2], box[0]
	}
	if box[1] > box[3] {
		box[1], box[3] = box[3], box[1]
	}
	if box[2]-box[0] <= 0 || box[3]-box[1] <= 0 {
		return defaultMediaBox
	}
	return box
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// SetRotation sets the absolute rotation of page i. degrees is normalized
// into [0, 360).
func (h *Handle) SetRotation(i, degrees int) error {
	d, err := h.pageDict(i)
	if err != nil {
		return err
	}
	if degrees%90 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRotation, degrees)
	}
	d.Set("Rotate", raw.NumberInt(int64(normalizeRotation(degrees))))
	return nil
}

// RemovePage drops page i. The page's objects stay in the graph until Save
// prunes them.
func (h *Handle) RemovePage(i int) error {
	if i < 0 || i >= len(h.pages) {
		return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, i, len(h.pages))
	}
	h.pages = append(h.pages[:i], h.pages[i+1:]...)
	h.syncPageTree()
	return nil
}

// RemovePages drops every listed page. Indices are validated against the
// current count before anything is removed.
func (h *Handle) RemovePages(indices []int) error {
	uniq := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(h.pages) {
			return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, i, len(h.pages))
		}
		uniq[i] = true
	}
	sorted := make([]int, 0, len(uniq))
	for i := range uniq {
		sorted = append(sorted, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, i := range sorted {
		h.pages = append(h.pages[:i], h.pages[i+1:]...)
	}
	h.syncPageTree()
	return nil
}

// AddPage appends a blank page and returns its index.
func (h *Handle) AddPage(width, height float64) int {
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("MediaBox", raw.Rect(0, 0, width, height))
	page.Set("Resources", raw.Dict())
	page.Set("Parent", h.pagesRef)
	h.pages = append(h.pages, h.raw.Add(page))
	h.syncPageTree()
	return len(h.pages) - 1
}

// ExtractRange returns a new document holding pages start..end (0-based,
// inclusive) of h.
func (h *Handle) ExtractRange(start, end int) (*Handle, error) {
	if start < 0 || end < start || end >= len(h.pages) {
		return nil, fmt.Errorf("%w: [%d, %d] of %d pages", ErrInvalidRange, start, end, len(h.pages))
	}
	dst := New()
	dst.logger = h.logger
	dst.raw.Version = h.raw.Version
	indices := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		indices = append(indices, i)
	}
	if err := dst.CopyPagesFrom(h, indices); err != nil {
		return nil, err
	}
	return dst, nil
}

// CopyPagesFrom appends deep copies of the listed pages of src. Objects
// shared between the copied pages, such as fonts, are copied once.
func (h *Handle) CopyPagesFrom(src *Handle, indices []int) error {
	for _, i := range indices {
		if i < 0 || i >= len(src.pages) {
			return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, i, len(src.pages))
		}
	}
	c := &copier{src: src.raw, dst: h.raw, mapped: make(map[raw.ObjectRef]raw.RefObj)}
	// Number the new pages up front so links between copied pages survive.
	refs := make([]raw.RefObj, len(indices))
	for n, i := range indices {
		refs[n] = h.raw.Add(raw.NullObj{})
		if _, dup := c.mapped[src.pages[i].R]; !dup {
			c.mapped[src.pages[i].R] = refs[n]
		}
	}
	for n, i := range indices {
		srcPage, err := src.pageDict(i)
		if err != nil {
			return err
		}
		page := raw.Dict()
		for k, v := range srcPage.KV {
			if k == "Parent" {
				continue
			}
			page.Set(k, c.copy(v))
		}
		page.Set("Parent", h.pagesRef)
		h.raw.Objects[refs[n].R] = page
		h.pages = append(h.pages, refs[n])
	}
	h.syncPageTree()
	return nil
}

// copier deep-copies object graphs between documents, renumbering
// references as it goes.
type copier struct {
	src, dst *raw.Document
	mapped   map[raw.ObjectRef]raw.RefObj
}

func (c *copier) copy(obj raw.Object) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		if ref, ok := c.mapped[v.R]; ok {
			return ref
		}
		target, ok := c.src.Objects[v.R]
		if !ok {
			return raw.NullObj{}
		}
		if d, ok := target.(*raw.DictObj); ok {
			if typ, _ := d.Name("Type"); typ == "Page" || typ == "Pages" || typ == "Catalog" {
				// Links to other pages are not followed.
				return raw.NullObj{}
			}
		}
		// Reserve the number first so cycles resolve to it.
		ref := c.dst.Add(raw.NullObj{})
		c.mapped[v.R] = ref
		c.dst.Objects[ref.R] = c.copy(target)
		return ref
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, item := range v.Items {
			out.Append(c.copy(item))
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		for k, item := range v.KV {
			out.Set(k, c.copy(item))
		}
		return out
	case *raw.StreamObj:
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return raw.NewStream(c.copy(v.Dict).(*raw.DictObj), data)
	case raw.StringObj:
		b := make([]byte, len(v.Bytes))
		copy(b, v.Bytes)
		return raw.StringObj{Bytes: b, Hex: v.Hex}
	}
	return obj
}

// PageContent returns the decoded content streams of page i, concatenated
// in drawing order.
func (h *Handle) PageContent(ctx context.Context, i int) ([]byte, error) {
	page, err := h.pageDict(i)
	if err != nil {
		return nil, err
	}
	pipeline := filters.Default()
	var out []byte
	for _, c := range h.contentRefs(page) {
		stream, ok := h.raw.Resolve(c).(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := pipeline.DecodeStream(ctx, h.raw, stream)
		if err != nil {
			return nil, fmt.Errorf("page %d content: %w", i, err)
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	return out, nil
}
