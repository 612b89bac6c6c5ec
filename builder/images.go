package builder

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfops/filters"
	"github.com/wudi/pdfops/ir/raw"
)

var ErrUnknownImageFormat = errors.New("image is neither PNG nor JPEG")

// DecodeImage tries PNG first and JPEG second.
func DecodeImage(data []byte) (image.Image, string, error) {
	if img, err := png.Decode(bytes.NewReader(data)); err == nil {
		return img, "png", nil
	}
	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return img, "jpeg", nil
	}
	return nil, "", ErrUnknownImageFormat
}

// ImageXObject converts img into a DeviceRGB image XObject. Transparency is
// carried by a separate DeviceGray soft mask, returned as nil when the
// image is fully opaque.
func ImageXObject(img image.Image) (*raw.StreamObj, *raw.StreamObj, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, nil, errors.New("image has no pixels")
	}

	nrgba := toNRGBA(img)
	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			pixels = append(pixels, px[0], px[1], px[2])
			alpha = append(alpha, px[3])
			if px[3] < 255 {
				hasAlpha = true
			}
		}
	}

	stream, err := imageStream(w, h, "DeviceRGB", pixels)
	if err != nil {
		return nil, nil, err
	}
	if !hasAlpha {
		return stream, nil, nil
	}
	mask, err := imageStream(w, h, "DeviceGray", alpha)
	if err != nil {
		return nil, nil, err
	}
	return stream, mask, nil
}

func imageStream(w, h int, colorSpace string, data []byte) (*raw.StreamObj, error) {
	enc, err := filters.FlateEncode(data)
	if err != nil {
		return nil, err
	}
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.NumberInt(int64(w)))
	d.Set("Height", raw.NumberInt(int64(h)))
	d.Set("ColorSpace", raw.NameLiteral(colorSpace))
	d.Set("BitsPerComponent", raw.NumberInt(8))
	d.Set("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(d, enc), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
