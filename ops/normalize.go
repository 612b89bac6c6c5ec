package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// kindKeys are tried in order to find an element's kind.
var kindKeys = []string{"kind", "type", "operationType"}

// Normalize turns a raw operation list into typed operations. It accepts JSON
// ([]byte, string, json.RawMessage) or already-decoded values (map[string]any,
// []any, []map[string]any). A single object yields a one-element list.
func Normalize(input any) ([]Operation, error) {
	elems, err := elements(input)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, Errorf(InvalidOperationFormat, "", NoPosition, "no operations")
	}
	out := make([]Operation, 0, len(elems))
	for i, elem := range elems {
		op, err := decodeElement(i, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func elements(input any) ([]json.RawMessage, error) {
	switch v := input.(type) {
	case nil:
		return nil, Errorf(InvalidOperationFormat, "", NoPosition, "no operations")
	case json.RawMessage:
		return splitJSON(v, true)
	case []byte:
		return splitJSON(v, true)
	case string:
		return splitJSON([]byte(v), true)
	case map[string]any, []any, []map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, Wrap(InvalidOperationFormat, "", NoPosition, err)
		}
		return splitJSON(data, false)
	}
	return nil, Errorf(InvalidOperationFormat, "", NoPosition, "unsupported input type %T", input)
}

// splitJSON returns the elements of a JSON array, or a single object as a
// one-element list. A top-level JSON string is decoded and parsed again once
// when reparse is set.
func splitJSON(data []byte, reparse bool) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, Errorf(InvalidOperationFormat, "", NoPosition, "empty input")
	}
	switch data[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, Wrap(InvalidOperationFormat, "", NoPosition, err)
		}
		return list, nil
	case '{':
		if !json.Valid(data) {
			return nil, Errorf(InvalidOperationFormat, "", NoPosition, "malformed JSON object")
		}
		return []json.RawMessage{data}, nil
	case '"':
		if !reparse {
			break
		}
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, Wrap(InvalidOperationFormat, "", NoPosition, err)
		}
		return splitJSON([]byte(inner), false)
	}
	return nil, Errorf(InvalidOperationFormat, "", NoPosition, "expected an operation object or list")
}

func decodeElement(pos int, elem json.RawMessage) (Operation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil || fields == nil {
		return nil, Errorf(InvalidOperationFormat, "", pos, "operation must be a JSON object")
	}
	kind, err := kindOf(fields)
	if err != nil {
		return nil, Wrap(InvalidOperationFormat, "", pos, err)
	}
	if kind == "" {
		return nil, Errorf(MissingOperationKind, "", pos, "operation has no kind, type or operationType")
	}

	var op Operation
	switch kind {
	case KindRotate:
		op, err = decodeRotate(fields, elem)
	case KindSplit:
		op, err = decodeSplit(fields, elem)
	case KindRemovePages:
		op, err = decodeRemovePages(fields, elem)
	case KindWatermark:
		op, err = decodeWatermark(elem)
	case KindImageWatermark:
		op, err = decodeImageWatermark(elem)
	case KindAddAnnotations:
		op, err = decodeAnnotations(fields, elem)
	case KindAddPassword:
		op, err = decodeAddPassword(elem)
	case KindRemovePassword:
		op, err = decodeRemovePassword(elem)
	default:
		return Unsupported{Name: kind}, nil
	}
	if err != nil {
		return nil, Wrap(InvalidOperationFormat, kind, pos, err)
	}
	return op, nil
}

func kindOf(fields map[string]json.RawMessage) (string, error) {
	for _, key := range kindKeys {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%s must be a string", key)
		}
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			return s, nil
		}
	}
	return "", nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func requireField(fields map[string]json.RawMessage, key string) error {
	if raw, ok := fields[key]; !ok || isNull(raw) {
		return fmt.Errorf("missing %s", key)
	}
	return nil
}

func decodeRotate(fields map[string]json.RawMessage, elem json.RawMessage) (Operation, error) {
	if err := requireField(fields, "rotations"); err != nil {
		return nil, err
	}
	var op Rotate
	if err := json.Unmarshal(elem, &op); err != nil {
		return nil, err
	}
	return op, nil
}

func decodeSplit(fields map[string]json.RawMessage, elem json.RawMessage) (Operation, error) {
	if requireField(fields, "ranges") != nil && requireField(fields, "splitPoints") != nil {
		return nil, errors.New("missing ranges or splitPoints")
	}
	var op Split
	if err := json.Unmarshal(elem, &op); err != nil {
		return nil, err
	}
	return op, nil
}

func decodeRemovePages(fields map[string]json.RawMessage, elem json.RawMessage) (Operation, error) {
	if err := requireField(fields, "pagesToRemove"); err != nil {
		return nil, err
	}
	var op RemovePages
	if err := json.Unmarshal(elem, &op); err != nil {
		return nil, err
	}
	return op, nil
}

// stampFields is the wire shape shared by both watermark kinds.
type stampFields struct {
	Opacity     *float64 `json:"opacity"`
	Position    Position `json:"position"`
	Width       *float64 `json:"width"`
	Height      *float64 `json:"height"`
	ImageWidth  *float64 `json:"imageWidth"`
	ImageHeight *float64 `json:"imageHeight"`
}

func (s stampFields) resolve() (opacity float64, pos Position, w, h float64, err error) {
	opacity = DefaultOpacity
	if s.Opacity != nil {
		opacity = *s.Opacity
	}
	if opacity < 0 || opacity > 1 {
		return 0, "", 0, 0, fmt.Errorf("opacity %v outside [0,1]", opacity)
	}
	pos = s.Position
	if pos == "" {
		pos = Center
	}
	if w, err = dimension("width", DefaultWatermarkWidth, s.Width, s.ImageWidth); err != nil {
		return
	}
	h, err = dimension("height", DefaultWatermarkHeight, s.Height, s.ImageHeight)
	return
}

// dimension returns the first non-zero candidate, or def.
func dimension(name string, def float64, candidates ...*float64) (float64, error) {
	for _, c := range candidates {
		if c == nil || *c == 0 {
			continue
		}
		if *c < 0 {
			return 0, fmt.Errorf("%s must be positive, got %v", name, *c)
		}
		return *c, nil
	}
	return def, nil
}

func decodeWatermark(elem json.RawMessage) (Operation, error) {
	var wire struct {
		stampFields
		WatermarkText string `json:"watermarkText"`
	}
	if err := json.Unmarshal(elem, &wire); err != nil {
		return nil, err
	}
	if wire.WatermarkText == "" {
		return nil, errors.New("missing watermarkText")
	}
	op := Watermark{WatermarkText: wire.WatermarkText}
	var err error
	op.Opacity, op.Position, op.Width, op.Height, err = wire.resolve()
	if err != nil {
		return nil, err
	}
	return op, nil
}

func decodeImageWatermark(elem json.RawMessage) (Operation, error) {
	var wire struct {
		stampFields
		ImageBuffer []byte `json:"imageBuffer"`
	}
	if err := json.Unmarshal(elem, &wire); err != nil {
		return nil, err
	}
	op := ImageWatermark{ImageBuffer: wire.ImageBuffer}
	var err error
	op.Opacity, op.Position, op.Width, op.Height, err = wire.resolve()
	if err != nil {
		return nil, err
	}
	return op, nil
}

func decodeAnnotations(fields map[string]json.RawMessage, elem json.RawMessage) (Operation, error) {
	if err := requireField(fields, "comments"); err != nil {
		return nil, err
	}
	var wire struct {
		Comments []struct {
			Page      int      `json:"page"`
			X         float64  `json:"x"`
			Y         float64  `json:"y"`
			Content   string   `json:"content"`
			TextColor *Color   `json:"textColor"`
			BgColor   *Color   `json:"bgColor"`
			FontSize  *float64 `json:"fontSize"`
			Width     *float64 `json:"width"`
			Height    *float64 `json:"height"`
		} `json:"comments"`
	}
	if err := json.Unmarshal(elem, &wire); err != nil {
		return nil, err
	}
	op := AddAnnotations{Comments: make([]Comment, 0, len(wire.Comments))}
	for i, c := range wire.Comments {
		out := Comment{Page: c.Page, X: c.X, Y: c.Y, Content: c.Content, TextColor: Black, BgColor: White}
		if c.TextColor != nil {
			out.TextColor = *c.TextColor
		}
		if c.BgColor != nil {
			out.BgColor = *c.BgColor
		}
		var err error
		if out.FontSize, err = dimension("fontSize", DefaultCommentFontSize, c.FontSize); err != nil {
			return nil, fmt.Errorf("comment %d: %w", i, err)
		}
		if out.Width, err = dimension("width", DefaultCommentWidth, c.Width); err != nil {
			return nil, fmt.Errorf("comment %d: %w", i, err)
		}
		if out.Height, err = dimension("height", DefaultCommentHeight, c.Height); err != nil {
			return nil, fmt.Errorf("comment %d: %w", i, err)
		}
		op.Comments = append(op.Comments, out)
	}
	return op, nil
}

func decodeAddPassword(elem json.RawMessage) (Operation, error) {
	var op AddPassword
	if err := json.Unmarshal(elem, &op); err != nil {
		return nil, err
	}
	if op.Password == "" {
		return nil, errors.New("missing password")
	}
	return op, nil
}

func decodeRemovePassword(elem json.RawMessage) (Operation, error) {
	var op RemovePassword
	if err := json.Unmarshal(elem, &op); err != nil {
		return nil, err
	}
	if op.Password == "" {
		return nil, errors.New("missing password")
	}
	return op, nil
}

// UnmarshalJSON accepts a three-element array with components in 0..1.
func (c *Color) UnmarshalJSON(b []byte) error {
	var parts []float64
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("color needs 3 components, got %d", len(parts))
	}
	for _, v := range parts {
		if v < 0 || v > 1 {
			return fmt.Errorf("color component %v outside [0,1]", v)
		}
	}
	copy(c[:], parts)
	return nil
}
