package ops

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Position anchors a watermark on the page.
type Position string

const (
	Center      Position = "center"
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
)

// Margin is the distance kept between corner watermarks and the page edge.
const Margin = 50.0

// ParsePosition accepts the five anchor names, case-insensitively. An empty
// name means Center.
func ParsePosition(s string) (Position, error) {
	p := Position(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return Center, nil
	case Center, TopLeft, TopRight, BottomLeft, BottomRight:
		return p, nil
	}
	return "", fmt.Errorf("unknown position %q", s)
}

func (p *Position) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePosition(s)
	if err != nil {
		// Unrecognized anchors are placed at the center.
		parsed = Center
	}
	*p = parsed
	return nil
}

// Place returns the lower-left corner of a w x h box anchored at p on a
// pageW x pageH page.
func (p Position) Place(pageW, pageH, w, h float64) (x, y float64) {
	switch p {
	case TopLeft:
		return Margin, pageH - h - Margin
	case TopRight:
		return pageW - w - Margin, pageH - h - Margin
	case BottomLeft:
		return Margin, Margin
	case BottomRight:
		return pageW - w - Margin, Margin
	}
	return (pageW - w) / 2, (pageH - h) / 2
}
