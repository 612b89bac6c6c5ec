package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfops/filters"
	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/recovery"
	"github.com/wudi/pdfops/scanner"
)

var ErrNoStartXRef = errors.New("startxref not found")

// ObjectReader parses objects for the resolver. The parser package supplies
// the implementation; xref only needs it for trailers and xref streams.
type ObjectReader interface {
	ReadObjectAt(offset int64) (raw.ObjectRef, raw.Object, error)
	ReadValueAt(offset int64) (raw.Object, error)
}

type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. In-use entries carry a byte Offset; compressed
// entries name the object Stream holding them and their Index inside it.
type Entry struct {
	Type   EntryType
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged cross-reference information of a file, newest
// section first.
type Table struct {
	entries  map[int]Entry
	Trailer  *raw.DictObj
	kind     string
	Repaired bool
}

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Objects returns the object numbers of all non-free entries in ascending
// order.
func (t *Table) Objects() []int {
	nums := make([]int, 0, len(t.entries))
	for n, e := range t.entries {
		if e.Type != EntryFree {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	return nums
}

func (t *Table) Type() string { return t.kind }

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
}

// Resolver locates and parses xref information in a PDF.
type Resolver struct {
	cfg     ResolverConfig
	filters *filters.Pipeline
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 64
	}
	return &Resolver{cfg: cfg, filters: filters.Default()}
}

// Resolve reads the xref chain that ends at the last startxref. When that
// fails and the recovery strategy asks for a fix, the table is rebuilt by
// scanning the file for object headers.
func (r *Resolver) Resolve(ctx context.Context, data []byte, rd ObjectReader) (*Table, error) {
	t, err := r.resolveChain(ctx, data, rd)
	if err == nil {
		return t, nil
	}
	if r.cfg.Recovery == nil {
		return nil, err
	}
	if r.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "xref"}) != recovery.ActionFix {
		return nil, err
	}
	return repair(ctx, data, rd)
}

func (r *Resolver) resolveChain(ctx context.Context, data []byte, rd ObjectReader) (*Table, error) {
	offset, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &Table{entries: make(map[int]Entry)}
	visited := make(map[int64]bool)
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain deeper than %d sections", r.cfg.MaxXRefDepth)
		}
		if visited[offset] {
			break
		}
		visited[offset] = true

		trailer, err := r.loadSection(ctx, data, offset, rd, t, depth == 0)
		if err != nil {
			return nil, fmt.Errorf("xref section at %d: %w", offset, err)
		}
		mergeTrailer(t, trailer)

		offset = -1
		if prev, ok := trailer.Get("Prev"); ok {
			if n, ok := prev.(raw.NumberObj); ok {
				offset = n.Int()
			}
		}
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		return nil, errors.New("trailer has no /Root")
	}
	return t, nil
}

func (r *Resolver) loadSection(ctx context.Context, data []byte, offset int64, rd ObjectReader, t *Table, newest bool) (*raw.DictObj, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("offset out of range")
	}
	s := scanner.New(data, scanner.Config{})
	_ = s.Seek(offset)
	s.SkipWhitespace()
	if bytes.HasPrefix(data[s.Position():], []byte("xref")) {
		if newest {
			t.kind = "table"
		}
		trailer, err := r.loadTable(s, rd, t)
		if err != nil {
			return nil, err
		}
		// Hybrid files keep part of their entries in a cross-reference stream.
		if stm, ok := trailer.Get("XRefStm"); ok {
			if n, ok := stm.(raw.NumberObj); ok {
				if _, err := r.loadStream(ctx, n.Int(), rd, t); err != nil {
					return nil, fmt.Errorf("hybrid xref stream: %w", err)
				}
			}
		}
		return trailer, nil
	}
	if newest {
		t.kind = "xref-stream"
	}
	return r.loadStream(ctx, offset, rd, t)
}

func (r *Resolver) loadTable(s *scanner.Scanner, rd ObjectReader, t *Table) (*raw.DictObj, error) {
	if tok, err := s.Next(); err != nil || tok.Str != "xref" {
		return nil, errors.New("missing xref keyword")
	}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("read subsection: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := rd.ReadValueAt(s.Position())
			if err != nil {
				return nil, fmt.Errorf("read trailer: %w", err)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return dict, nil
		}
		if tok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("unexpected token %q in xref table", tok.Str)
		}
		start := int(tok.Int)
		countTok, err := s.Next()
		if err != nil || countTok.Type != scanner.TokenNumber {
			return nil, errors.New("malformed subsection header")
		}
		for i := 0; i < int(countTok.Int); i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kindTok, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("read xref entry: %w", err)
			}
			if offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber {
				return nil, errors.New("malformed xref entry")
			}
			num := start + i
			if _, seen := t.entries[num]; seen {
				continue
			}
			switch kindTok.Str {
			case "n":
				t.entries[num] = Entry{Type: EntryInUse, Offset: offTok.Int, Gen: int(genTok.Int)}
			case "f":
				t.entries[num] = Entry{Type: EntryFree, Gen: int(genTok.Int)}
			default:
				return nil, fmt.Errorf("unknown xref entry type %q", kindTok.Str)
			}
		}
	}
}

func (r *Resolver) loadStream(ctx context.Context, offset int64, rd ObjectReader, t *Table) (*raw.DictObj, error) {
	_, obj, err := rd.ReadObjectAt(offset)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("xref offset does not point to a stream")
	}
	if typ, _ := stream.Dict.Name("Type"); typ != "XRef" {
		return nil, fmt.Errorf("expected /Type /XRef, got %q", typ)
	}
	payload, err := r.filters.DecodeStream(ctx, nil, stream)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	widths, err := intArray(stream.Dict, "W")
	if err != nil || len(widths) != 3 {
		return nil, errors.New("xref stream needs /W with three entries")
	}
	index, err := intArray(stream.Dict, "Index")
	if err != nil {
		size, ok := stream.Dict.Get("Size")
		n, isNum := size.(raw.NumberObj)
		if !ok || !isNum {
			return nil, errors.New("xref stream has neither /Index nor /Size")
		}
		index = []int{0, int(n.Int())}
	}
	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen <= 0 {
		return nil, errors.New("xref stream row width is zero")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(payload) {
				return stream.Dict, nil
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := 1
			if widths[0] > 0 {
				typ = int(readField(row[:widths[0]]))
			}
			f2 := readField(row[widths[0] : widths[0]+widths[1]])
			f3 := readField(row[widths[0]+widths[1]:])
			num := start + j
			if _, seen := t.entries[num]; seen {
				continue
			}
			switch typ {
			case 0:
				t.entries[num] = Entry{Type: EntryFree, Gen: int(f3)}
			case 1:
				t.entries[num] = Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				t.entries[num] = Entry{Type: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
		}
	}
	return stream.Dict, nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(d *raw.DictObj, key string) ([]int, error) {
	o, ok := d.Get(key)
	if !ok {
		return nil, fmt.Errorf("missing /%s", key)
	}
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("/%s is not an array", key)
	}
	out := make([]int, 0, arr.Len())
	for _, item := range arr.Items {
		n, ok := item.(raw.NumberObj)
		if !ok {
			return nil, fmt.Errorf("/%s holds a non-number", key)
		}
		out = append(out, int(n.Int()))
	}
	return out, nil
}

// mergeTrailer keeps keys from newer sections and fills gaps from older ones.
func mergeTrailer(t *Table, trailer *raw.DictObj) {
	if t.Trailer == nil {
		t.Trailer = raw.Dict()
	}
	for _, k := range []string{"Root", "Info", "Encrypt", "ID", "Size"} {
		if _, ok := t.Trailer.Get(k); ok {
			continue
		}
		if v, ok := trailer.Get(k); ok {
			t.Trailer.Set(k, v)
		}
	}
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	s := scanner.New(data, scanner.Config{})
	_ = s.Seek(int64(idx + len("startxref")))
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("parse startxref: %s", strconv.Quote(tok.Str))
	}
	if tok.Int <= 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", tok.Int)
	}
	return tok.Int, nil
}
