// Package recovery decides how the parser reacts to damaged input.
package recovery

import "context"

type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location describes where a fault was detected.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	// ActionFail aborts the parse with the reported error.
	ActionFail Action = iota
	// ActionSkip drops the damaged element and continues.
	ActionSkip
	// ActionFix asks the caller to attempt a structural repair, such as
	// rebuilding the cross-reference table.
	ActionFix
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	default:
		return "unknown"
	}
}
