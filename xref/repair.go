package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdfops/ir/raw"
)

var objHeader = regexp.MustCompile(`(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and "trailer" dictionaries.
// Later definitions win, matching incremental-update semantics.
func repair(ctx context.Context, data []byte, rd ObjectReader) (*Table, error) {
	t := &Table{entries: make(map[int]Entry), kind: "repaired", Repaired: true}
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := m[0]
		if start > 0 && !isBoundary(data[start-1]) {
			continue
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		t.entries[num] = Entry{Type: EntryInUse, Offset: int64(start), Gen: gen}
	}
	if len(t.entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	t.Trailer = raw.Dict()
	if idx := bytes.LastIndex(data, []byte("trailer")); idx >= 0 {
		if obj, err := rd.ReadValueAt(int64(idx + len("trailer"))); err == nil {
			if dict, ok := obj.(*raw.DictObj); ok {
				mergeTrailer(t, dict)
			}
		}
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		// No usable trailer: take the keys from an xref stream dictionary or
		// fall back to the first catalog in the file.
		for _, num := range t.Objects() {
			ref, obj, err := rd.ReadObjectAt(t.entries[num].Offset)
			if err != nil {
				continue
			}
			var dict *raw.DictObj
			switch v := obj.(type) {
			case *raw.DictObj:
				dict = v
			case *raw.StreamObj:
				dict = v.Dict
			default:
				continue
			}
			switch typ, _ := dict.Name("Type"); typ {
			case "XRef":
				mergeTrailer(t, dict)
			case "Catalog":
				if _, ok := t.Trailer.Get("Root"); !ok {
					t.Trailer.Set("Root", raw.RefObj{R: ref})
				}
			}
		}
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		return nil, errors.New("repair failed: no catalog found")
	}
	return t, nil
}

func isBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '>', ']', ')':
		return true
	}
	return false
}
