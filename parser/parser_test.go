package parser

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/recovery"
)

// pdfBuilder writes numbered objects and a classic xref section.
type pdfBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func newPDFBuilder() *pdfBuilder {
	b := &pdfBuilder{offsets: make(map[int]int)}
	b.buf.WriteString("%PDF-1.7\n")
	return b
}

func (b *pdfBuilder) object(num int, body string) {
	b.offsets[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (b *pdfBuilder) finish(trailer string, prev int) []byte {
	xrefOff := b.buf.Len()
	nums := make([]int, 0, len(b.offsets))
	for n := range b.offsets {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	b.buf.WriteString("xref\n0 1\n0000000000 65535 f \n")
	for _, n := range nums {
		fmt.Fprintf(&b.buf, "%d 1\n%010d 00000 n \n", n, b.offsets[n])
	}
	if prev > 0 {
		trailer = fmt.Sprintf("%s /Prev %d", trailer, prev)
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d %s >>\nstartxref\n%d\n%%%%EOF\n", nums[len(nums)-1]+1, trailer, xrefOff)
	return b.buf.Bytes()
}

func buildClassicPDF() []byte {
	b := newPDFBuilder()
	b.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.object(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	return b.finish("/Root 1 0 R", 0)
}

func TestDocumentParserParsesClassicXRef(t *testing.T) {
	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), buildClassicPDF())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := doc.Version; got != "1.7" {
		t.Fatalf("expected version 1.7, got %q", got)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(doc.Objects))
	}
	cat, err := doc.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if typ, _ := cat.Name("Type"); typ != "Catalog" {
		t.Fatalf("unexpected catalog type %q", typ)
	}
}

func TestDocumentParserFollowsPrevChain(t *testing.T) {
	base := buildClassicPDF()
	prev := bytes.Index(base, []byte("\nxref\n")) + 1

	b := &pdfBuilder{offsets: make(map[int]int)}
	b.buf.Write(base)
	b.object(2, "<< /Type /Pages /Kids [] /Count 2 >>")
	b.object(3, "<< /Producer (update) >>")
	data := b.finish("/Root 1 0 R /Info 3 0 R", prev)

	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	pages, ok := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	if !ok {
		t.Fatalf("expected dict for object 2, got %T", doc.Objects[raw.ObjectRef{Num: 2}])
	}
	if n, _ := doc.Int(mustGet(t, pages, "Count")); n != 2 {
		t.Fatalf("expected Count 2 after update, got %d", n)
	}
	if _, ok := doc.Trailer.Get("Info"); !ok {
		t.Fatalf("trailer lost /Info")
	}
}

func TestDocumentParserExpandsObjectStreams(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 4 0 R >>\nendobj\n")

	inner := "<< /Type /Pages /Kids [] /Count 0 >> (five)"
	header := fmt.Sprintf("4 0 5 %d ", len("<< /Type /Pages /Kids [] /Count 0 >>")+1)
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	zw.Write([]byte(header + inner))
	zw.Close()
	off3 := buf.Len()
	fmt.Fprintf(buf, "3 0 obj\n<< /Type /ObjStm /N 2 /First %d /Filter /FlateDecode /Length %d >>\nstream\n", len(header), z.Len())
	buf.Write(z.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	xrefOff := buf.Len()
	rows := make([]byte, 7*4)
	put := func(obj, typ, f2, f3 int) {
		i := obj * 4
		rows[i], rows[i+1], rows[i+2], rows[i+3] = byte(typ), byte(f2>>8), byte(f2), byte(f3)
	}
	put(1, 1, off1, 0)
	put(3, 1, off3, 0)
	put(4, 2, 3, 0)
	put(5, 2, 3, 1)
	put(6, 1, xrefOff, 0)
	fmt.Fprintf(buf, "6 0 obj\n<< /Type /XRef /Size 7 /Root 1 0 R /W [1 2 1] /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.Version != "1.5" {
		t.Fatalf("expected version 1.5, got %q", doc.Version)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.DictObj); !ok {
		t.Fatalf("object 4 not expanded from object stream")
	}
	if s, ok := doc.Objects[raw.ObjectRef{Num: 5}].(raw.StringObj); !ok || string(s.Bytes) != "five" {
		t.Fatalf("object 5 not expanded: %#v", doc.Objects[raw.ObjectRef{Num: 5}])
	}
	for _, num := range []int{3, 6} {
		if _, ok := doc.Objects[raw.ObjectRef{Num: num}]; ok {
			t.Fatalf("container object %d should be dropped", num)
		}
	}
}

func TestDocumentParserIndirectLength(t *testing.T) {
	b := newPDFBuilder()
	b.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.object(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.object(3, "<< /Length 4 0 R >>\nstream\nendstream inside\nendstream")
	b.object(4, "16")
	data := b.finish("/Root 1 0 R", 0)

	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	s, ok := doc.Objects[raw.ObjectRef{Num: 3}].(*raw.StreamObj)
	if !ok {
		t.Fatalf("expected stream, got %T", doc.Objects[raw.ObjectRef{Num: 3}])
	}
	if string(s.Data) != "endstream inside" {
		t.Fatalf("stream data %q", s.Data)
	}
}

func TestDocumentParserRecovery(t *testing.T) {
	b := newPDFBuilder()
	b.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.object(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.offsets[3] = 5 // points into the header
	data := b.finish("/Root 1 0 R", 0)

	if _, err := NewDocumentParser(Config{}).Parse(context.Background(), data); err == nil {
		t.Fatalf("expected failure without recovery")
	}
	if _, err := NewDocumentParser(Config{Recovery: recovery.NewStrictStrategy()}).Parse(context.Background(), data); err == nil {
		t.Fatalf("expected failure with strict strategy")
	}

	lenient := recovery.NewLenientStrategy()
	doc, err := NewDocumentParser(Config{Recovery: lenient}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("lenient parse failed: %v", err)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected damaged object to be skipped, got %d objects", len(doc.Objects))
	}
	if len(lenient.Errors) != 1 {
		t.Fatalf("expected one recorded fault, got %d", len(lenient.Errors))
	}
}

func TestDocumentParserRepairsMissingXRef(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	doc, err := NewDocumentParser(Config{Recovery: recovery.NewLenientStrategy()}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("repair parse failed: %v", err)
	}
	if _, err := doc.Catalog(); err != nil {
		t.Fatalf("catalog: %v", err)
	}
}

func TestDocumentParserRejectsNonPDF(t *testing.T) {
	_, err := NewDocumentParser(Config{}).Parse(context.Background(), []byte("hello world"))
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestDocumentParserHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDocumentParser(Config{}).Parse(ctx, buildClassicPDF()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func mustGet(t *testing.T, d *raw.DictObj, key string) raw.Object {
	t.Helper()
	v, ok := d.Get(key)
	if !ok {
		t.Fatalf("missing /%s", key)
	}
	return v
}
