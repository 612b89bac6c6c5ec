package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/scanner"
	"github.com/wudi/pdfops/xref"
)

const maxNesting = 256

var errUnexpectedEnd = errors.New("unexpected end of data")

// objectReader parses objects out of the full file buffer. Once the xref
// table is known it is used to resolve indirect /Length values.
type objectReader struct {
	data  []byte
	cfg   scanner.Config
	table *xref.Table

	inLength bool
}

// NewObjectReader returns the reader the parser hands to the xref resolver.
func NewObjectReader(data []byte, cfg scanner.Config) xref.ObjectReader {
	return &objectReader{data: data, cfg: cfg}
}

// ReadObjectAt parses "num gen obj <value> [stream ... endstream] endobj"
// starting at offset.
func (r *objectReader) ReadObjectAt(offset int64) (raw.ObjectRef, raw.Object, error) {
	s := scanner.New(r.data, r.cfg)
	if err := s.Seek(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	numTok, err1 := s.Next()
	genTok, err2 := s.Next()
	objTok, err3 := s.Next()
	if err := errors.Join(err1, err2, err3); err != nil {
		return raw.ObjectRef{}, nil, fmt.Errorf("object header at %d: %w", offset, err)
	}
	if numTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || objTok.Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("no object header at offset %d", offset)
	}
	ref := raw.ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}

	val, err := r.parseValue(s, 0)
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	dict, isDict := val.(*raw.DictObj)
	if !isDict {
		return ref, val, nil
	}
	mark := s.Position()
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenKeyword || tok.Str != "stream" {
		_ = s.Seek(mark)
		return ref, dict, nil
	}
	data, err := r.streamData(s.Position(), dict)
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	return ref, raw.NewStream(dict, data), nil
}

// ReadValueAt parses a single direct value, such as a trailer dictionary.
func (r *objectReader) ReadValueAt(offset int64) (raw.Object, error) {
	s := scanner.New(r.data, r.cfg)
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	return r.parseValue(s, 0)
}

// streamData locates the payload after the "stream" keyword. A /Length that
// does not land on "endstream" is ignored in favour of a keyword search.
func (r *objectReader) streamData(pos int64, dict *raw.DictObj) ([]byte, error) {
	start := int(pos)
	if start < len(r.data) && r.data[start] == '\r' {
		start++
	}
	if start < len(r.data) && r.data[start] == '\n' {
		start++
	}
	if length, ok := r.streamLength(dict); ok && length >= 0 {
		end := start + int(length)
		if end <= len(r.data) && endstreamFollows(r.data[end:]) {
			return r.data[start:end], nil
		}
	}
	idx := bytes.Index(r.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, errors.New("endstream not found")
	}
	end := start + idx
	if end > start && r.data[end-1] == '\n' {
		end--
	}
	if end > start && r.data[end-1] == '\r' {
		end--
	}
	return r.data[start:end], nil
}

func (r *objectReader) streamLength(dict *raw.DictObj) (int64, bool) {
	o, ok := dict.Get("Length")
	if !ok {
		return 0, false
	}
	switch v := o.(type) {
	case raw.NumberObj:
		return v.Int(), true
	case raw.RefObj:
		if r.table == nil || r.inLength {
			return 0, false
		}
		r.inLength = true
		defer func() { r.inLength = false }()
		e, ok := r.table.Lookup(v.R.Num)
		if !ok || e.Type != xref.EntryInUse {
			return 0, false
		}
		_, obj, err := r.ReadObjectAt(e.Offset)
		if err != nil {
			return 0, false
		}
		if n, ok := obj.(raw.NumberObj); ok {
			return n.Int(), true
		}
	}
	return 0, false
}

func endstreamFollows(rest []byte) bool {
	i := 0
	for i < len(rest) && (rest[i] == '\r' || rest[i] == '\n' || rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	return bytes.HasPrefix(rest[i:], []byte("endstream"))
}

func (r *objectReader) parseValue(s *scanner.Scanner, depth int) (raw.Object, error) {
	if depth > maxNesting {
		return nil, errors.New("objects nested too deeply")
	}
	tok, err := s.Next()
	if err == io.EOF {
		return nil, errUnexpectedEnd
	}
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenDict:
		return r.parseDict(s, depth)
	case scanner.TokenArray:
		return r.parseArray(s, depth)
	case scanner.TokenName:
		return raw.NameLiteral(tok.Str), nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenNumber:
		if !tok.IsInt {
			return raw.NumberFloat(tok.Float), nil
		}
		if ref, ok := tryReference(s, tok); ok {
			return ref, nil
		}
		return raw.NumberInt(tok.Int), nil
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", tok.Str, tok.Pos)
}

// tryReference checks for "<gen> R" after an integer, rewinding otherwise.
func tryReference(s *scanner.Scanner, num scanner.Token) (raw.RefObj, bool) {
	mark := s.Position()
	gen, err := s.Next()
	if err == nil && gen.Type == scanner.TokenNumber && gen.IsInt {
		kw, err := s.Next()
		if err == nil && kw.Type == scanner.TokenKeyword && kw.Str == "R" {
			return raw.Ref(int(num.Int), int(gen.Int)), true
		}
	}
	_ = s.Seek(mark)
	return raw.RefObj{}, false
}

func (r *objectReader) parseArray(s *scanner.Scanner, depth int) (raw.Object, error) {
	arr := raw.NewArray()
	for {
		mark := s.Position()
		tok, err := s.Next()
		if err != nil {
			return nil, errUnexpectedEnd
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		_ = s.Seek(mark)
		item, err := r.parseValue(s, depth+1)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *objectReader) parseDict(s *scanner.Scanner, depth int) (raw.Object, error) {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, errUnexpectedEnd
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("dictionary key must be a name, got %q at offset %d", tok.Str, tok.Pos)
		}
		mark := s.Position()
		next, err := s.Next()
		if err != nil {
			return nil, errUnexpectedEnd
		}
		if next.Type == scanner.TokenKeyword && next.Str == ">>" {
			// Key without a value; treat it as null and finish.
			return dict, nil
		}
		_ = s.Seek(mark)
		val, err := r.parseValue(s, depth+1)
		if err != nil {
			return nil, err
		}
		if _, isNull := val.(raw.NullObj); !isNull {
			dict.Set(tok.Str, val)
		}
	}
}
