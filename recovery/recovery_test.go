package recovery

import (
	"context"
	"errors"
	"testing"
)

func TestStrictStrategyFails(t *testing.T) {
	s := NewStrictStrategy()
	if got := s.OnError(context.Background(), errors.New("bad"), Location{Component: "xref"}); got != ActionFail {
		t.Fatalf("strict action = %v, want fail", got)
	}
}

func TestLenientStrategyActions(t *testing.T) {
	s := NewLenientStrategy()
	ctx := context.Background()
	if got := s.OnError(ctx, errors.New("startxref"), Location{Component: "xref"}); got != ActionFix {
		t.Fatalf("xref action = %v, want fix", got)
	}
	if got := s.OnError(ctx, errors.New("dict"), Location{Component: "object", ObjectNum: 4}); got != ActionSkip {
		t.Fatalf("object action = %v, want skip", got)
	}
	if len(s.Errors) != 2 {
		t.Fatalf("recorded %d errors, want 2", len(s.Errors))
	}
}

func TestLenientStrategyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := NewLenientStrategy().OnError(ctx, errors.New("x"), Location{}); got != ActionFail {
		t.Fatalf("cancelled action = %v, want fail", got)
	}
}
