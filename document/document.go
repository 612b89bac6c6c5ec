// Package document is the in-memory, mutable model of a PDF that the
// operation pipeline and the layout engine work on. A Handle owns its pages
// and is not safe for concurrent use.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/observability"
	"github.com/wudi/pdfops/optimize"
	"github.com/wudi/pdfops/parser"
	"github.com/wudi/pdfops/recovery"
	"github.com/wudi/pdfops/security"
	"github.com/wudi/pdfops/writer"
)

var (
	ErrPageOutOfRange   = errors.New("page index out of range")
	ErrInvalidRange     = errors.New("invalid page range")
	ErrUnsupportedImage = errors.New("unsupported image format")
	ErrInvalidRotation  = errors.New("rotation must be a multiple of 90")
	ErrNoPageTree       = errors.New("document has no page tree")
)

const producer = "pdfops"

// Handle is a loaded or newly created document.
type Handle struct {
	raw      *raw.Document
	pagesRef raw.RefObj
	pages    []raw.RefObj

	encryption *security.Encryption
	encrypted  bool
	logger     observability.Logger

	fonts      map[string]raw.RefObj
	states     map[float64]raw.RefObj
	isolated   map[raw.ObjectRef]bool
	saveRef    *raw.RefObj
	restoreRef *raw.RefObj
}

type loadOptions struct {
	password string
	recovery recovery.Strategy
	logger   observability.Logger
}

type LoadOption func(*loadOptions)

// WithPassword opens encrypted input, as user or owner.
func WithPassword(pwd string) LoadOption {
	return func(o *loadOptions) { o.password = pwd }
}

// WithRecovery replaces the default lenient strategy.
func WithRecovery(s recovery.Strategy) LoadOption {
	return func(o *loadOptions) { o.recovery = s }
}

func WithLogger(l observability.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = l }
}

// Load parses data into a Handle. Damaged cross-reference data is repaired
// and unparsable objects are skipped unless WithRecovery says otherwise.
// data is not retained or modified.
func Load(ctx context.Context, data []byte, opts ...LoadOption) (*Handle, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = observability.OrNop(o.logger)
	if o.recovery == nil {
		o.recovery = &recovery.LenientStrategy{Logger: o.logger}
	}
	p := parser.NewDocumentParser(parser.Config{
		Password: o.password,
		Recovery: o.recovery,
		Logger:   o.logger,
	})
	doc, err := p.Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	h := newHandle(doc, o.logger)
	h.encrypted = doc.Encrypted
	if err := h.flattenPageTree(); err != nil {
		return nil, err
	}
	return h, nil
}

// New returns an empty document with no pages.
func New() *Handle {
	doc := raw.NewDocument("1.7")
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray())
	pages.Set("Count", raw.NumberInt(0))
	pagesRef := doc.Add(pages)

	cat := raw.Dict()
	cat.Set("Type", raw.NameLiteral("Catalog"))
	cat.Set("Pages", pagesRef)
	doc.Trailer.Set("Root", doc.Add(cat))

	info := raw.Dict()
	info.Set("Producer", raw.Str([]byte(producer)))
	doc.Trailer.Set("Info", doc.Add(info))

	h := newHandle(doc, nil)
	h.pagesRef = pagesRef
	return h
}

func newHandle(doc *raw.Document, logger observability.Logger) *Handle {
	return &Handle{
		raw:      doc,
		logger:   observability.OrNop(logger),
		fonts:    make(map[string]raw.RefObj),
		states:   make(map[float64]raw.RefObj),
		isolated: make(map[raw.ObjectRef]bool),
	}
}

// Raw exposes the underlying object graph.
func (h *Handle) Raw() *raw.Document { return h.raw }

// Encrypted reports whether the source file was encrypted.
func (h *Handle) Encrypted() bool { return h.encrypted }

func (h *Handle) SetLogger(l observability.Logger) { h.logger = observability.OrNop(l) }

// SetTitle records title in the document information dictionary.
func (h *Handle) SetTitle(title string) {
	info := h.info()
	info.Set("Title", raw.Str([]byte(title)))
}

func (h *Handle) Title() string {
	infoObj, ok := h.raw.Trailer.Get("Info")
	if !ok {
		return ""
	}
	info, ok := h.raw.ResolveDict(infoObj)
	if !ok {
		return ""
	}
	v, _ := info.Get("Title")
	if s, ok := h.raw.Resolve(v).(raw.StringObj); ok {
		return string(s.Bytes)
	}
	return ""
}

func (h *Handle) info() *raw.DictObj {
	if infoObj, ok := h.raw.Trailer.Get("Info"); ok {
		if info, ok := h.raw.ResolveDict(infoObj); ok {
			return info
		}
	}
	info := raw.Dict()
	info.Set("Producer", raw.Str([]byte(producer)))
	h.raw.Trailer.Set("Info", h.raw.Add(info))
	return info
}

// Encrypt protects the output of the next Save with AES-128. A nil
// argument removes encryption.
func (h *Handle) Encrypt(enc *security.Encryption) {
	h.encryption = enc
}

// SaveOptions controls serialization.
type SaveOptions struct {
	Compress      bool
	Deterministic bool
}

// Save serializes the document. Only objects reachable from the catalog
// are written.
func (h *Handle) Save(ctx context.Context, w io.Writer, opts SaveOptions) error {
	if opts.Compress {
		opt := optimize.New(optimize.Config{
			CombineDuplicateStreams:   true,
			CombineDuplicateResources: true,
			Logger:                    h.logger,
		})
		if _, err := opt.Optimize(ctx, h.raw); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
	}
	cfg := writer.Config{
		Compression:   opts.Compress,
		Deterministic: opts.Deterministic,
		Encryption:    h.encryption,
		Logger:        h.logger,
	}
	if err := writer.NewWriter().Write(ctx, h.raw, w, cfg); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Bytes is Save into a buffer.
func (h *Handle) Bytes(ctx context.Context, opts SaveOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := h.Save(ctx, &buf, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
