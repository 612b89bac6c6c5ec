package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/wudi/pdfops/builder"
	"github.com/wudi/pdfops/document"
	"github.com/wudi/pdfops/observability"
	"github.com/wudi/pdfops/ops"
	"github.com/wudi/pdfops/security"
)

// Fixed drawing parameters for stamps and annotations.
const (
	stampBoxOpacity      = 0.1
	stampTextInset       = 10.0
	annotationBgOpacity  = 0.8
	annotationTextInset  = 5.0
	annotationBorderSize = 1.0
)

var errNoRanges = errors.New("split produced no page ranges")

func builtinHandlers() map[string]Handler {
	return map[string]Handler{
		ops.KindRotate:         HandlerFunc(applyRotate),
		ops.KindSplit:          HandlerFunc(applySplit),
		ops.KindRemovePages:    HandlerFunc(applyRemovePages),
		ops.KindWatermark:      HandlerFunc(applyWatermark),
		ops.KindImageWatermark: HandlerFunc(applyImageWatermark),
		ops.KindAddAnnotations: HandlerFunc(applyAnnotations),
		ops.KindAddPassword:    HandlerFunc(applyAddPassword),
		ops.KindRemovePassword: HandlerFunc(applyRemovePassword),
	}
}

func mismatch(want string, op ops.Operation) error {
	return fmt.Errorf("handler for %s got %T", want, op)
}

func applyRotate(_ context.Context, st *State, op ops.Operation) error {
	r, ok := op.(ops.Rotate)
	if !ok {
		return mismatch(ops.KindRotate, op)
	}
	count := st.Doc.PageCount()
	for _, rot := range r.Rotations {
		if rot.Page < 1 || rot.Page > count {
			return fmt.Errorf("page %d: %w (document has %d pages)", rot.Page, document.ErrPageOutOfRange, count)
		}
		if err := st.Doc.SetRotation(rot.Page-1, rot.Degrees); err != nil {
			return fmt.Errorf("page %d: %w", rot.Page, err)
		}
	}
	return nil
}

// applySplit replaces the working document with the first requested range.
// Every range is validated, but only ranges[0] survives; later operations
// see the narrowed document. Callers wanting each part issue one request
// per range.
func applySplit(_ context.Context, st *State, op ops.Operation) error {
	s, ok := op.(ops.Split)
	if !ok {
		return mismatch(ops.KindSplit, op)
	}
	count := st.Doc.PageCount()
	ranges := s.Ranges
	if ranges == nil {
		ranges = rangesFromSplitPoints(s.SplitPoints, count)
	}
	if len(ranges) == 0 {
		return errNoRanges
	}
	for _, r := range ranges {
		if r.Start < 1 || r.End < r.Start || r.End > count {
			return fmt.Errorf("range %d-%d: %w (document has %d pages)", r.Start, r.End, document.ErrInvalidRange, count)
		}
	}
	part, err := st.Doc.ExtractRange(ranges[0].Start-1, ranges[0].End-1)
	if err != nil {
		return err
	}
	st.Logger.Debug("split",
		observability.Int("start", ranges[0].Start),
		observability.Int("end", ranges[0].End),
		observability.Int("ranges", len(ranges)),
	)
	st.Doc = part
	return nil
}

// rangesFromSplitPoints cuts [1, count] after each increasing in-range
// point. Points that do not advance are ignored.
func rangesFromSplitPoints(points []int, count int) []ops.PageRange {
	var out []ops.PageRange
	last := 0
	for _, p := range points {
		if p > last && p <= count {
			out = append(out, ops.PageRange{Start: last + 1, End: p})
			last = p
		}
	}
	if last < count {
		out = append(out, ops.PageRange{Start: last + 1, End: count})
	}
	return out
}

func applyRemovePages(_ context.Context, st *State, op ops.Operation) error {
	r, ok := op.(ops.RemovePages)
	if !ok {
		return mismatch(ops.KindRemovePages, op)
	}
	indices := removalOrder(r.PagesToRemove, st.Doc.PageCount())
	if len(indices) == 0 {
		return nil
	}
	return st.Doc.RemovePages(indices)
}

// removalOrder converts 1-based page numbers to unique, in-range 0-based
// indices sorted in descending order.
func removalOrder(pages []int, count int) []int {
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		i := p - 1
		if i < 0 || i >= count || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func applyWatermark(_ context.Context, st *State, op ops.Operation) error {
	w, ok := op.(ops.Watermark)
	if !ok {
		return mismatch(ops.KindWatermark, op)
	}
	size := math.Min(w.Width, w.Height) / 10
	for i := 0; i < st.Doc.PageCount(); i++ {
		page, err := st.Doc.Page(i)
		if err != nil {
			return err
		}
		x, y := w.Position.Place(page.Width, page.Height, w.Width, w.Height)
		cb, err := st.Doc.NewContent(i)
		if err != nil {
			return err
		}
		cb.DrawRectangle(x, y, w.Width, w.Height, builder.RectOptions{
			Fill:      true,
			FillColor: builder.White,
			Opacity:   builder.Alpha(stampBoxOpacity),
		})
		cb.DrawText(w.WatermarkText, x+stampTextInset, y+w.Height/2, builder.TextOptions{
			FontSize: size,
			Color:    builder.Black,
			Opacity:  builder.Alpha(w.Opacity),
		})
		if err := st.Doc.Draw(i, cb); err != nil {
			return err
		}
	}
	return nil
}

func applyImageWatermark(_ context.Context, st *State, op ops.Operation) error {
	w, ok := op.(ops.ImageWatermark)
	if !ok {
		return mismatch(ops.KindImageWatermark, op)
	}
	if len(w.ImageBuffer) == 0 {
		return errors.New("image watermark has no image")
	}
	img, err := st.Doc.EmbedImage(w.ImageBuffer, st.maxImageDimension)
	if err != nil {
		return err
	}
	for i := 0; i < st.Doc.PageCount(); i++ {
		page, err := st.Doc.Page(i)
		if err != nil {
			return err
		}
		x, y := w.Position.Place(page.Width, page.Height, w.Width, w.Height)
		cb, err := st.Doc.NewContent(i)
		if err != nil {
			return err
		}
		cb.DrawImage(img.Ref, x, y, w.Width, w.Height, builder.ImageOptions{Opacity: builder.Alpha(w.Opacity)})
		if err := st.Doc.Draw(i, cb); err != nil {
			return err
		}
	}
	return nil
}

func applyAnnotations(_ context.Context, st *State, op ops.Operation) error {
	a, ok := op.(ops.AddAnnotations)
	if !ok {
		return mismatch(ops.KindAddAnnotations, op)
	}
	for _, c := range a.Comments {
		i := c.Page - 1
		if i < 0 || i >= st.Doc.PageCount() {
			st.Logger.Warn("skipping annotation on missing page",
				observability.Int("page", c.Page),
				observability.Int("pages", st.Doc.PageCount()),
			)
			continue
		}
		page, err := st.Doc.Page(i)
		if err != nil {
			return err
		}
		x, y := clampBox(c.X, c.Y, c.Width, c.Height, page.Width, page.Height)
		cb, err := st.Doc.NewContent(i)
		if err != nil {
			return err
		}
		cb.DrawRectangle(x, y, c.Width, c.Height, builder.RectOptions{
			Fill:      true,
			FillColor: rgb(c.BgColor),
			Opacity:   builder.Alpha(annotationBgOpacity),
		})
		cb.DrawRectangle(x, y, c.Width, c.Height, builder.RectOptions{
			Stroke:      true,
			StrokeColor: builder.Black,
			LineWidth:   annotationBorderSize,
		})
		cb.DrawText(c.Content, x+annotationTextInset, y+c.Height/2, builder.TextOptions{
			FontSize: c.FontSize,
			Color:    rgb(c.TextColor),
		})
		if err := st.Doc.Draw(i, cb); err != nil {
			return err
		}
	}
	return nil
}

// clampBox keeps a w x h box with its lower-left corner at (x, y) inside a
// pageW x pageH page where possible.
func clampBox(x, y, w, h, pageW, pageH float64) (float64, float64) {
	return math.Max(0, math.Min(x, pageW-w)), math.Max(0, math.Min(y, pageH-h))
}

func rgb(c ops.Color) builder.Color {
	return builder.Color{R: c[0], G: c[1], B: c[2]}
}

func applyAddPassword(_ context.Context, st *State, op ops.Operation) error {
	p, ok := op.(ops.AddPassword)
	if !ok {
		return mismatch(ops.KindAddPassword, op)
	}
	if !p.Options.RequiresUserPassword() {
		st.Logger.Info("userPassword disabled, document left unencrypted")
		return nil
	}
	owner := p.Password
	if !p.Options.OwnerPassword {
		var err error
		if owner, err = randomOwnerPassword(); err != nil {
			return fmt.Errorf("owner password: %w", err)
		}
	}
	st.Doc.Encrypt(&security.Encryption{
		UserPassword:  p.Password,
		OwnerPassword: owner,
		Permissions:   security.RestrictedPermissions(),
	})
	return nil
}

func randomOwnerPassword() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func applyRemovePassword(ctx context.Context, st *State, op ops.Operation) error {
	r, ok := op.(ops.RemovePassword)
	if !ok {
		return mismatch(ops.KindRemovePassword, op)
	}
	data, err := st.Doc.Bytes(ctx, document.SaveOptions{})
	if err != nil {
		return fmt.Errorf("serialize working document: %w", err)
	}
	src, err := document.Load(ctx, data, document.WithPassword(r.Password), document.WithLogger(st.Logger))
	if err != nil {
		return err
	}
	out := document.New()
	out.SetLogger(st.Logger)
	indices := make([]int, src.PageCount())
	for i := range indices {
		indices[i] = i
	}
	if err := out.CopyPagesFrom(src, indices); err != nil {
		return err
	}
	st.Doc = out
	return nil
}
