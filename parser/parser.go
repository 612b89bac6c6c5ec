package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfops/filters"
	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/observability"
	"github.com/wudi/pdfops/recovery"
	"github.com/wudi/pdfops/scanner"
	"github.com/wudi/pdfops/security"
	"github.com/wudi/pdfops/xref"
)

var ErrNotPDF = errors.New("missing %PDF header")

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	// Password opens encrypted files. It is tried as the user password
	// first, then as the owner password.
	Password string
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Scanner  scanner.Config
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document using xref tables/streams and the
// object reader. Encrypted input is decrypted in place, so the returned
// document never carries an /Encrypt entry.
type DocumentParser struct {
	cfg     Config
	filters *filters.Pipeline
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.XRef.Recovery == nil {
		cfg.XRef.Recovery = cfg.Recovery
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &DocumentParser{cfg: cfg, filters: filters.Default()}
}

// SetPassword updates the password for decryption when parsing encrypted PDFs.
func (p *DocumentParser) SetPassword(pwd string) {
	p.cfg.Password = pwd
}

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version, err := detectHeaderVersion(data)
	if err != nil {
		return nil, err
	}
	rd := &objectReader{data: data, cfg: p.cfg.Scanner}
	table, err := xref.NewResolver(p.cfg.XRef).Resolve(ctx, data, rd)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	rd.table = table

	doc := raw.NewDocument(version)
	for _, k := range table.Trailer.Keys() {
		if k == "Root" || k == "Info" || k == "ID" || k == "Encrypt" {
			v, _ := table.Trailer.Get(k)
			doc.Trailer.Set(k, v)
		}
	}

	compressed := make(map[int][]int)
	for _, num := range table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, _ := table.Lookup(num)
		if entry.Type == xref.EntryCompressed {
			compressed[entry.Stream] = append(compressed[entry.Stream], num)
			continue
		}
		ref, obj, err := rd.ReadObjectAt(entry.Offset)
		if err == nil && ref.Num != num {
			err = fmt.Errorf("xref points object %d at object %d", num, ref.Num)
		}
		if err != nil {
			if ferr := p.fault(ctx, err, entry.Offset, num); ferr != nil {
				return nil, ferr
			}
			continue
		}
		doc.Objects[raw.ObjectRef{Num: num, Gen: entry.Gen}] = obj
	}

	sec, encryptRef, err := p.selectSecurity(doc)
	if err != nil {
		return nil, fmt.Errorf("security setup: %w", err)
	}
	if sec.IsEncrypted() {
		if err := p.decryptAll(ctx, doc, sec, encryptRef); err != nil {
			return nil, err
		}
		doc.Encrypted = true
		doc.MetadataEncrypted = sec.EncryptMetadata()
		doc.Permissions = sec.Permissions()
		doc.Trailer.Delete("Encrypt")
		if encryptRef != nil {
			delete(doc.Objects, *encryptRef)
		}
	}

	if table.Repaired {
		// A rebuilt table has no type-2 entries; recover them from every
		// object stream found during the scan.
		for ref, obj := range doc.Objects {
			if s, ok := obj.(*raw.StreamObj); ok {
				if typ, _ := s.Dict.Name("Type"); typ == "ObjStm" {
					compressed[ref.Num] = nil
				}
			}
		}
	}
	if err := p.expandObjectStreams(ctx, doc, compressed); err != nil {
		return nil, err
	}
	dropContainers(doc)

	p.cfg.Logger.Debug("parsed document",
		observability.String("version", version),
		observability.Int("objects", len(doc.Objects)),
		observability.String("xref", table.Type()),
		observability.Bool("encrypted", doc.Encrypted),
	)
	return doc, nil
}

// fault consults the recovery strategy. A nil return means skip.
func (p *DocumentParser) fault(ctx context.Context, err error, offset int64, num int) error {
	if p.cfg.Recovery == nil {
		return err
	}
	loc := recovery.Location{ByteOffset: offset, ObjectNum: num, Component: "object"}
	if p.cfg.Recovery.OnError(ctx, err, loc) == recovery.ActionFail {
		return err
	}
	return nil
}

func (p *DocumentParser) selectSecurity(doc *raw.Document) (security.Handler, *raw.ObjectRef, error) {
	encObj, ok := doc.Trailer.Get("Encrypt")
	if !ok {
		return security.NoopHandler(), nil, nil
	}
	var encryptRef *raw.ObjectRef
	if ref, ok := encObj.(raw.RefObj); ok {
		encryptRef = &ref.R
	}
	encDict, ok := doc.ResolveDict(encObj)
	if !ok {
		return nil, nil, errors.New("/Encrypt is not a dictionary")
	}
	h, err := (&security.HandlerBuilder{}).WithEncryptDict(encDict).WithFileID(fileIDFromTrailer(doc)).Build()
	if err != nil {
		return nil, nil, err
	}
	if err := h.Authenticate(p.cfg.Password); err != nil {
		return nil, nil, err
	}
	return h, encryptRef, nil
}

func fileIDFromTrailer(doc *raw.Document) []byte {
	idObj, ok := doc.Trailer.Get("ID")
	if !ok {
		return nil
	}
	arr, ok := doc.ResolveArray(idObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := doc.Resolve(arr.Items[0]).(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}

func (p *DocumentParser) decryptAll(ctx context.Context, doc *raw.Document, sec security.Handler, encryptRef *raw.ObjectRef) error {
	for ref, obj := range doc.Objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if encryptRef != nil && ref == *encryptRef {
			continue
		}
		out, err := decryptObject(sec, ref, obj, true)
		if err != nil {
			if ferr := p.fault(ctx, fmt.Errorf("decrypt %s: %w", ref, err), 0, ref.Num); ferr != nil {
				return ferr
			}
			continue
		}
		doc.Objects[ref] = out
	}
	return nil
}

// decryptObject returns a decrypted copy of obj. Source byte slices are
// never modified.
func decryptObject(sec security.Handler, ref raw.ObjectRef, obj raw.Object, top bool) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		plain, err := sec.Decrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: plain, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, item := range v.Items {
			d, err := decryptObject(sec, ref, item, false)
			if err != nil {
				return nil, err
			}
			out.Append(d)
		}
		return out, nil
	case *raw.DictObj:
		return decryptDict(sec, ref, v)
	case *raw.StreamObj:
		if !top {
			return v, nil
		}
		dict, err := decryptDict(sec, ref, v.Dict)
		if err != nil {
			return nil, err
		}
		typ, _ := v.Dict.Name("Type")
		if typ == "XRef" || (typ == "Metadata" && !sec.EncryptMetadata()) {
			return raw.NewStream(dict, v.Data), nil
		}
		data, err := sec.Decrypt(ref.Num, ref.Gen, v.Data, security.DataClassStream)
		if err != nil {
			return nil, err
		}
		return raw.NewStream(dict, data), nil
	}
	return obj, nil
}

func decryptDict(sec security.Handler, ref raw.ObjectRef, d *raw.DictObj) (*raw.DictObj, error) {
	out := raw.Dict()
	for k, item := range d.KV {
		dec, err := decryptObject(sec, ref, item, false)
		if err != nil {
			return nil, err
		}
		out.Set(k, dec)
	}
	return out, nil
}

// expandObjectStreams parses the objects held in each object stream. want
// lists the object numbers the xref expects; nil means take every object.
func (p *DocumentParser) expandObjectStreams(ctx context.Context, doc *raw.Document, streams map[int][]int) error {
	nums := make([]int, 0, len(streams))
	for n := range streams {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, streamNum := range nums {
		want := streams[streamNum]
		err := p.expandObjectStream(ctx, doc, streamNum, want)
		if err != nil {
			if ferr := p.fault(ctx, fmt.Errorf("object stream %d: %w", streamNum, err), 0, streamNum); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}

func (p *DocumentParser) expandObjectStream(ctx context.Context, doc *raw.Document, streamNum int, want []int) error {
	stream, ok := doc.Objects[raw.ObjectRef{Num: streamNum}].(*raw.StreamObj)
	if !ok {
		return errors.New("object stream missing")
	}
	n, _ := doc.Int(dictValue(stream.Dict, "N"))
	first, _ := doc.Int(dictValue(stream.Dict, "First"))
	payload, err := p.filters.DecodeStream(ctx, doc, stream)
	if err != nil {
		return err
	}
	if first < 0 || int(first) > len(payload) {
		return fmt.Errorf("/First %d outside payload", first)
	}
	if n < 0 || n > first {
		return fmt.Errorf("implausible object count %d", n)
	}

	header := scanner.New(payload[:first], p.cfg.Scanner)
	offsets := make(map[int]int64, n)
	order := make([]int, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err1 := header.Next()
		offTok, err2 := header.Next()
		if err1 != nil || err2 != nil {
			break
		}
		offsets[int(numTok.Int)] = first + offTok.Int
		order = append(order, int(numTok.Int))
	}
	if want == nil {
		want = order
	}

	rd := &objectReader{data: payload, cfg: p.cfg.Scanner}
	for _, num := range want {
		ref := raw.ObjectRef{Num: num}
		if _, exists := doc.Objects[ref]; exists {
			continue
		}
		off, ok := offsets[num]
		if !ok {
			continue
		}
		obj, err := rd.ReadValueAt(off)
		if err != nil {
			if ferr := p.fault(ctx, fmt.Errorf("object %d in stream %d: %w", num, streamNum, err), off, num); ferr != nil {
				return ferr
			}
			continue
		}
		doc.Objects[ref] = obj
	}
	return nil
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, ok := d.Get(key)
	if !ok {
		return raw.NullObj{}
	}
	return v
}

// dropContainers removes xref and object streams; the writer produces its
// own cross-reference data.
func dropContainers(doc *raw.Document) {
	for ref, obj := range doc.Objects {
		s, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if typ, _ := s.Dict.Name("Type"); typ == "XRef" || typ == "ObjStm" {
			delete(doc.Objects, ref)
		}
	}
}

func detectHeaderVersion(data []byte) (string, error) {
	window := data
	if len(window) > 1024 {
		window = window[:1024]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	rest := data[idx+5:]
	end := 0
	for end < len(rest) && end < 8 && (rest[end] == '.' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	version := string(rest[:end])
	if _, err := strconv.ParseFloat(version, 64); err != nil {
		return "1.7", nil
	}
	return version, nil
}
