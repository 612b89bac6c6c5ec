package filters

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfops/ir/raw"
)

func TestFlateDecode(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateEncodeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("BT /F1 12 Tf (Hello) Tj ET\n"), 50)
	enc, err := FlateEncode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(enc) >= len(payload) {
		t.Fatalf("expected compression, got %d >= %d", len(enc), len(payload))
	}
	out, err := NewFlateDecoder().Decode(context.Background(), enc, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("round trip mismatch")
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor rows: Sub on the first row, Up on the second.
	comp, err := FlateEncode([]byte{1, 10, 12, 20, 2, 1, 1, 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(3))

	out, err := NewFlateDecoder().Decode(context.Background(), comp, params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42, 11, 23, 43}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestRunLengthDecode(t *testing.T) {
	in := []byte{2, 'a', 'b', 'c', 254, 'z', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "abczzz" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD]i,\"Ebo80~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("48 65 6c\n6c 6f 2>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello " {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	comp, _ := FlateEncode([]byte("chained"))
	hexed := []byte{}
	for _, b := range comp {
		hexed = append(hexed, "0123456789ABCDEF"[b>>4], "0123456789ABCDEF"[b&0x0f])
	}
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	out, err := Default().DecodeStream(context.Background(), nil, raw.NewStream(dict, hexed))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	_, err := Default().Decode(context.Background(), []byte{1}, []string{"JBIG2Decode"}, nil)
	if !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected ErrUnknownFilter, got %v", err)
	}
}

func TestSizeLimit(t *testing.T) {
	comp, _ := FlateEncode(bytes.Repeat([]byte{'a'}, 4096))
	p := NewPipeline([]Decoder{NewFlateDecoder()}, Limits{MaxDecompressedSize: 1024})
	if _, err := p.Decode(context.Background(), comp, []string{"FlateDecode"}, nil); !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected ErrSizeLimit, got %v", err)
	}
}
