package writer

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/wudi/pdfops/filters"
	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/observability"
	"github.com/wudi/pdfops/security"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	// Version overrides the header version. Empty keeps the document's own,
	// falling back to 1.7.
	Version PDFVersion
	// Compression flate-encodes streams that carry no filter yet.
	Compression bool
	// Deterministic derives the file identifier from the content instead of
	// random bytes.
	Deterministic bool
	// Encryption protects the output with the standard security handler.
	Encryption *security.Encryption
	Logger     observability.Logger
}

// Writer serializes the objects reachable from the trailer's /Root and
// /Info. Unreachable objects are dropped and the survivors are renumbered
// from 1 in discovery order.
type Writer struct{}

func NewWriter() *Writer { return &Writer{} }

func (wr *Writer) Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error {
	if _, err := doc.Catalog(); err != nil {
		return err
	}
	logger := observability.OrNop(cfg.Logger)

	order, remap := collect(doc)
	objects := make([]raw.Object, len(order))
	for i, ref := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := rewrite(doc.Objects[ref], remap)
		if s, ok := obj.(*raw.StreamObj); ok && cfg.Compression {
			compressed, err := compressStream(s)
			if err != nil {
				return fmt.Errorf("compress object %s: %w", ref, err)
			}
			obj = compressed
		}
		objects[i] = obj
	}

	trailer := raw.Dict()
	trailer.Set("Root", rewrite(mustGet(doc.Trailer, "Root"), remap))
	if info, ok := doc.Trailer.Get("Info"); ok {
		if r := rewrite(info, remap); r != nil {
			trailer.Set("Info", r)
		}
	}

	id, err := fileID(objects, cfg.Deterministic)
	if err != nil {
		return err
	}
	trailer.Set("ID", raw.NewArray(raw.HexStr(id), raw.HexStr(id)))

	if cfg.Encryption != nil {
		encDict, h, err := security.BuildAESEncryption(*cfg.Encryption, id)
		if err != nil {
			return fmt.Errorf("setup encryption: %w", err)
		}
		for i, obj := range objects {
			enc, err := encryptObject(h, i+1, obj)
			if err != nil {
				return fmt.Errorf("encrypt object %d: %w", i+1, err)
			}
			objects[i] = enc
		}
		objects = append(objects, encDict)
		trailer.Set("Encrypt", raw.Ref(len(objects), 0))
	}
	trailer.Set("Size", raw.NumberInt(int64(len(objects)+1)))

	version := string(cfg.Version)
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = string(PDF17)
	}

	cw := &countingWriter{w: w}
	fmt.Fprintf(cw, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)
	offsets := make([]int64, len(objects))
	for i, obj := range objects {
		offsets[i] = cw.n
		fmt.Fprintf(cw, "%d 0 obj\n", i+1)
		cw.Write(SerializeObject(obj))
		io.WriteString(cw, "\nendobj\n")
		if cw.err != nil {
			return cw.err
		}
	}
	xrefOffset := cw.n
	fmt.Fprintf(cw, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(cw, "%010d 00000 n \n", off)
	}
	io.WriteString(cw, "trailer\n")
	cw.Write(SerializeObject(trailer))
	fmt.Fprintf(cw, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	if cw.err != nil {
		return cw.err
	}
	logger.Debug("wrote document",
		observability.Int("objects", len(objects)),
		observability.Int64("bytes", cw.n),
		observability.Bool("encrypted", cfg.Encryption != nil),
	)
	return nil
}

// Bytes is a convenience wrapper around Write.
func (wr *Writer) Bytes(ctx context.Context, doc *raw.Document, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := wr.Write(ctx, doc, &buf, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mustGet(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}

// collect walks the graph breadth first from the trailer and assigns new
// object numbers.
func collect(doc *raw.Document) ([]raw.ObjectRef, map[raw.ObjectRef]int) {
	remap := make(map[raw.ObjectRef]int)
	var order []raw.ObjectRef
	var queue []raw.Object
	for _, key := range []string{"Root", "Info"} {
		if v, ok := doc.Trailer.Get(key); ok {
			queue = append(queue, v)
		}
	}
	visit := func(o raw.Object) {
		ref, ok := o.(raw.RefObj)
		if !ok {
			return
		}
		if _, seen := remap[ref.R]; seen {
			return
		}
		if _, exists := doc.Objects[ref.R]; !exists {
			return
		}
		remap[ref.R] = len(order) + 1
		order = append(order, ref.R)
		queue = append(queue, doc.Objects[ref.R])
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		switch v := cur.(type) {
		case raw.RefObj:
			visit(v)
		case *raw.ArrayObj:
			for _, item := range v.Items {
				queue = append(queue, item)
			}
		case *raw.DictObj:
			for _, k := range v.Keys() {
				queue = append(queue, v.KV[k])
			}
		case *raw.StreamObj:
			queue = append(queue, v.Dict)
		}
	}
	return order, remap
}

// rewrite deep-copies obj with references renumbered. Dangling references
// become null.
func rewrite(obj raw.Object, remap map[raw.ObjectRef]int) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		n, ok := remap[v.R]
		if !ok {
			return raw.NullObj{}
		}
		return raw.Ref(n, 0)
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, item := range v.Items {
			out.Items[i] = rewrite(item, remap)
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		for k, item := range v.KV {
			r := rewrite(item, remap)
			if _, null := r.(raw.NullObj); null {
				continue
			}
			out.Set(k, r)
		}
		return out
	case *raw.StreamObj:
		return raw.NewStream(rewrite(v.Dict, remap).(*raw.DictObj), v.Data)
	}
	return obj
}

func compressStream(s *raw.StreamObj) (*raw.StreamObj, error) {
	if _, filtered := s.Dict.Get("Filter"); filtered || len(s.Data) == 0 {
		return s, nil
	}
	enc, err := filters.FlateEncode(s.Data)
	if err != nil {
		return nil, err
	}
	if len(enc) >= len(s.Data) {
		return s, nil
	}
	s.Dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(s.Dict, enc), nil
}

func encryptObject(h security.Handler, num int, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		enc, err := h.Encrypt(num, 0, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.HexStr(enc), nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			enc, err := encryptObject(h, num, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = enc
		}
		return v, nil
	case *raw.DictObj:
		for k, item := range v.KV {
			enc, err := encryptObject(h, num, item)
			if err != nil {
				return nil, err
			}
			v.KV[k] = enc
		}
		return v, nil
	case *raw.StreamObj:
		if _, err := encryptObject(h, num, v.Dict); err != nil {
			return nil, err
		}
		data, err := h.Encrypt(num, 0, v.Data, security.DataClassStream)
		if err != nil {
			return nil, err
		}
		return raw.NewStream(v.Dict, data), nil
	}
	return obj, nil
}

func fileID(objects []raw.Object, deterministic bool) ([]byte, error) {
	if !deterministic {
		id := make([]byte, 16)
		if _, err := rand.Read(id); err != nil {
			return nil, err
		}
		return id, nil
	}
	h := md5.New()
	for _, obj := range objects {
		h.Write(SerializeObject(obj))
	}
	return h.Sum(nil), nil
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
