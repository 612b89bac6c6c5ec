package builder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/wudi/pdfops/ir/raw"
)

func TestDrawTextPopulatesResources(t *testing.T) {
	b := NewContentBuilder()
	b.DrawText("Hello (world)", 60, 700, TextOptions{FontSize: 14, Color: Color{1, 0, 0}})
	b.DrawText("again", 60, 680, TextOptions{})

	res := b.Resources()
	if len(res.Fonts) != 1 || res.Fonts["OpF1"] != Helvetica {
		t.Fatalf("unexpected fonts %v", res.Fonts)
	}
	out := string(b.Bytes())
	for _, want := range []string{"/OpF1 14 Tf", "60 700 Td", "(Hello \\(world\\)) Tj", "1 0 0 rg", "/OpF1 12 Tf"} {
		if !strings.Contains(out, want) {
			t.Fatalf("content missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "q\n") != strings.Count(out, "Q\n") {
		t.Fatalf("unbalanced graphics state:\n%s", out)
	}
}

func TestOpacitySharesExtGState(t *testing.T) {
	b := NewContentBuilder()
	b.DrawRectangle(0, 0, 10, 10, RectOptions{Fill: true, FillColor: White, Opacity: Alpha(0.1)})
	b.DrawText("x", 0, 0, TextOptions{Opacity: Alpha(0.1)})
	b.DrawText("y", 0, 0, TextOptions{Opacity: Alpha(0.5)})
	b.DrawText("z", 0, 0, TextOptions{Opacity: Alpha(0)})

	res := b.Resources()
	if len(res.ExtGStates) != 3 {
		t.Fatalf("expected 3 graphics states, got %v", res.ExtGStates)
	}
	if res.ExtGStates["OpGS1"] != 0.1 || res.ExtGStates["OpGS3"] != 0 {
		t.Fatalf("unexpected alphas %v", res.ExtGStates)
	}
	if c := strings.Count(string(b.Bytes()), "/OpGS1 gs"); c != 2 {
		t.Fatalf("expected OpGS1 twice, got %d", c)
	}
}

func TestDrawRectangleModes(t *testing.T) {
	cases := []struct {
		opts RectOptions
		op   string
	}{
		{RectOptions{}, "S"},
		{RectOptions{Fill: true}, "f"},
		{RectOptions{Fill: true, Stroke: true}, "B"},
	}
	for _, tc := range cases {
		b := NewContentBuilder().DrawRectangle(1.5, 2, 3, 4, tc.opts)
		out := string(b.Bytes())
		if !strings.Contains(out, "1.5 2 3 4 re\n"+tc.op+"\n") {
			t.Fatalf("expected paint %q:\n%s", tc.op, out)
		}
	}
}

func TestDrawImageReusesName(t *testing.T) {
	b := NewContentBuilder()
	ref := raw.Ref(7, 0)
	b.DrawImage(ref, 10, 20, 100, 50, ImageOptions{})
	b.DrawImage(ref, 30, 40, 100, 50, ImageOptions{Opacity: Alpha(0.5)})
	if len(b.Resources().XObjects) != 1 {
		t.Fatalf("image registered twice: %v", b.Resources().XObjects)
	}
	if !strings.Contains(string(b.Bytes()), "100 0 0 50 10 20 cm\n/OpIm1 Do") {
		t.Fatalf("missing placement:\n%s", b.Bytes())
	}
}

func TestEncodeWinAnsi(t *testing.T) {
	got := EncodeWinAnsi("café €5\t日")
	want := []byte{'c', 'a', 'f', 0xE9, ' ', 0x80, '5', ' ', '?'}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeWinAnsi = % X, want % X", got, want)
	}
	if lit := literal(got); !strings.Contains(lit, "\\351") {
		t.Fatalf("expected octal escape in %q", lit)
	}
}

func TestNum(t *testing.T) {
	cases := map[float64]string{0: "0", 1: "1", 0.5: "0.5", -2.25: "-2.25", 595.28: "595.28", -0.0001: "0"}
	for in, want := range cases {
		if got := num(in); got != want {
			t.Errorf("num(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestImageXObject(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	stream, mask, err := ImageXObject(img)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if mask != nil {
		t.Fatalf("opaque image should have no soft mask")
	}
	if w, _ := stream.Dict.Get("Width"); w.(raw.NumberObj).Int() != 4 {
		t.Fatalf("unexpected width %v", w)
	}

	img.Set(0, 0, color.NRGBA{A: 10})
	_, mask, err = ImageXObject(img)
	if err != nil || mask == nil {
		t.Fatalf("expected soft mask, err=%v", err)
	}
	if cs, _ := mask.Dict.Name("ColorSpace"); cs != "DeviceGray" {
		t.Fatalf("mask color space %q", cs)
	}
}

func TestDecodeImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var p, j bytes.Buffer
	if err := png.Encode(&p, img); err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(&j, img, nil); err != nil {
		t.Fatal(err)
	}
	if _, kind, err := DecodeImage(p.Bytes()); err != nil || kind != "png" {
		t.Fatalf("png: %s %v", kind, err)
	}
	if _, kind, err := DecodeImage(j.Bytes()); err != nil || kind != "jpeg" {
		t.Fatalf("jpeg: %s %v", kind, err)
	}
	if _, _, err := DecodeImage([]byte("GIF89a")); err != ErrUnknownImageFormat {
		t.Fatalf("expected ErrUnknownImageFormat, got %v", err)
	}
}

func TestReserveSkipsExistingNames(t *testing.T) {
	b := NewContentBuilder().Reserve("OpF1", "OpGS1", "OpGS2")
	b.DrawText("x", 0, 0, TextOptions{Opacity: Alpha(0.3)})
	res := b.Resources()
	if _, ok := res.Fonts["OpF2"]; !ok {
		t.Fatalf("expected OpF2, got %v", res.Fonts)
	}
	if _, ok := res.ExtGStates["OpGS3"]; !ok {
		t.Fatalf("expected OpGS3, got %v", res.ExtGStates)
	}
}
