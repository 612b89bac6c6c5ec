package optimize

import (
	"image"

	"golang.org/x/image/draw"
)

// Downscale shrinks img so neither side exceeds maxDim, keeping the aspect
// ratio. Images already within bounds, or a non-positive maxDim, are
// returned unchanged.
func Downscale(img image.Image, maxDim int) (image.Image, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img, false
	}
	targetW, targetH := maxDim, maxDim
	if w >= h {
		targetH = max(1, h*maxDim/w)
	} else {
		targetW = max(1, w*maxDim/h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, true
}
