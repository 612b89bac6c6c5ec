package xref_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/wudi/pdfops/parser"
	"github.com/wudi/pdfops/scanner"
	"github.com/wudi/pdfops/xref"
)

func buildSimplePDF() ([]byte, map[int]int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	offsets := make(map[int]int64)
	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 3\n0000000000 65535 f \n")
	for i := 1; i <= 2; i++ {
		fmt.Fprintf(buf, "%010d 00000 n \n", offsets[i])
	}
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), offsets
}

type objStmEntry struct {
	stream int
	index  int
}

// buildXRefStreamEntries lays out rows for /W [1 4 1].
func buildXRefStreamEntries(size int, offsets map[int]int, compressed map[int]objStmEntry) []byte {
	const rowLen = 6
	rows := make([]byte, rowLen*size)
	put := func(obj, typ, f2, f3 int) {
		i := obj * rowLen
		rows[i] = byte(typ)
		rows[i+1] = byte(f2 >> 24)
		rows[i+2] = byte(f2 >> 16)
		rows[i+3] = byte(f2 >> 8)
		rows[i+4] = byte(f2)
		rows[i+5] = byte(f3)
	}
	for obj, off := range offsets {
		put(obj, 1, off, 0)
	}
	for obj, e := range compressed {
		put(obj, 2, e.stream, e.index)
	}
	return rows
}

func buildXRefStreamPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	// Object stream holding objects 4 and 5.
	body := "<< /Val 7 >> 5"
	header := fmt.Sprintf("4 0 5 %d ", len("<< /Val 7 >>")+1)
	decoded := header + body
	off3 := buf.Len()
	fmt.Fprintf(buf, "3 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n", len(header), len(decoded))
	buf.WriteString(decoded)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOffset := buf.Len()
	entries := buildXRefStreamEntries(7,
		map[int]int{1: off1, 2: off2, 3: off3, 6: xrefOffset},
		map[int]objStmEntry{4: {3, 0}, 5: {3, 1}},
	)
	fmt.Fprintf(buf, "6 0 obj\n<< /Type /XRef /Size 7 /Root 1 0 R /W [1 4 1] /Index [0 7] /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func buildHybridXRefPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	streamOff := buf.Len()
	entries := buildXRefStreamEntries(6, map[int]int{1: off1, 2: off2, 4: streamOff}, nil)
	fmt.Fprintf(buf, "4 0 obj\n<< /Type /XRef /Size 6 /Root 1 0 R /W [1 4 1] /Index [0 6] /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", streamOff)

	// Incremental update whose classic table points back at the stream.
	off5 := buf.Len()
	buf.WriteString("5 0 obj\n<< /Producer (inc) >>\nendobj\n")
	tableOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 1\n0000000000 65535 f \n5 1\n%010d 00000 n \n", off5)
	fmt.Fprintf(buf, "trailer\n<< /Size 6 /Root 1 0 R /Prev %d /XRefStm %d >>\nstartxref\n%d\n%%%%EOF\n", streamOff, streamOff, tableOff)
	return buf.Bytes()
}

func resolve(t *testing.T, data []byte, cfg xref.ResolverConfig) *xref.Table {
	t.Helper()
	rd := parser.NewObjectReader(data, scanner.Config{})
	table, err := xref.NewResolver(cfg).Resolve(context.Background(), data, rd)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return table
}

func TestResolverParsesXRefTable(t *testing.T) {
	data, offsets := buildSimplePDF()
	table := resolve(t, data, xref.ResolverConfig{})
	if table.Type() != "table" {
		t.Fatalf("expected classic table, got %s", table.Type())
	}
	for obj, off := range offsets {
		e, ok := table.Lookup(obj)
		if !ok {
			t.Fatalf("missing object %d", obj)
		}
		if e.Type != xref.EntryInUse || e.Offset != off || e.Gen != 0 {
			t.Fatalf("object %d: expected in-use at %d, got %+v", obj, off, e)
		}
	}
	if got := table.Objects(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected objects %v", got)
	}
	if _, ok := table.Trailer.Get("Root"); !ok {
		t.Fatalf("trailer lost /Root")
	}
}

func TestResolverParsesXRefStreamAndObjStm(t *testing.T) {
	table := resolve(t, buildXRefStreamPDF(), xref.ResolverConfig{})
	if table.Type() != "xref-stream" {
		t.Fatalf("expected xref-stream table, got %s", table.Type())
	}
	e, ok := table.Lookup(4)
	if !ok || e.Type != xref.EntryCompressed || e.Stream != 3 || e.Index != 0 {
		t.Fatalf("expected obj 4 in objstm 3 idx 0, got %+v", e)
	}
	e, ok = table.Lookup(5)
	if !ok || e.Type != xref.EntryCompressed || e.Index != 1 {
		t.Fatalf("expected obj 5 in objstm, got %+v", e)
	}
	if e, _ := table.Lookup(1); e.Type != xref.EntryInUse || e.Offset == 0 {
		t.Fatalf("object 1 missing offset")
	}
}

func TestResolverParsesHybridXRefTableWithXRefStream(t *testing.T) {
	table := resolve(t, buildHybridXRefPDF(), xref.ResolverConfig{})
	if table.Type() != "table" {
		t.Fatalf("expected classic table as primary, got %s", table.Type())
	}
	for _, num := range []int{1, 2, 5} {
		e, ok := table.Lookup(num)
		if !ok || e.Type != xref.EntryInUse || e.Offset == 0 {
			t.Fatalf("object %d not resolved: %+v", num, e)
		}
	}
}

func TestResolverFollowsPrevChain(t *testing.T) {
	base, _ := buildSimplePDF()
	buf := bytes.NewBuffer(append([]byte(nil), base...))
	prev := bytes.Index(base, []byte("\nxref\n")) + 1

	// Revision two replaces object 2 and adds object 3.
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 /Rev 2 >>\nendobj\n")
	off3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Title (two) >>\nendobj\n")
	xrefOff := buf.Len()
	fmt.Fprintf(buf, "xref\n2 2\n%010d 00000 n \n%010d 00000 n \n", off2, off3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Info 3 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", prev, xrefOff)

	table := resolve(t, buf.Bytes(), xref.ResolverConfig{})
	if e, _ := table.Lookup(2); e.Offset != int64(off2) {
		t.Fatalf("newest revision should win for object 2: %+v", e)
	}
	if e, ok := table.Lookup(1); !ok || e.Type != xref.EntryInUse {
		t.Fatalf("object 1 from older section missing")
	}
	if _, ok := table.Trailer.Get("Info"); !ok {
		t.Fatalf("trailer should carry /Info from newest section")
	}
}

func TestResolverRejectsPrevLoop(t *testing.T) {
	data, _ := buildSimplePDF()
	xrefOff := bytes.Index(data, []byte("\nxref\n")) + 1
	// Point /Prev back at the same section; the loop must terminate.
	looped := bytes.Replace(data, []byte("/Size 3 /Root 1 0 R"), []byte(fmt.Sprintf("/Size 3 /Root 1 0 R /Prev %d", xrefOff)), 1)
	resolve(t, looped, xref.ResolverConfig{})
}

func TestResolverMissingStartXRef(t *testing.T) {
	data := []byte("%PDF-1.7\n1 0 obj\n<< >>\nendobj\n%%EOF\n")
	rd := parser.NewObjectReader(data, scanner.Config{})
	_, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), data, rd)
	if err == nil {
		t.Fatalf("expected error without startxref")
	}
}
