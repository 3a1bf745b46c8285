package hostfunc

import (
	"context"
	"testing"
)

func TestRegistryCloneIsIndependent(t *testing.T) {
	base := NewRegistry()
	base.Register("shared", func(ctx context.Context, args map[string]any) (any, error) {
		return "base", nil
	})

	a := base.Clone()
	b := base.Clone()
	a.Register("input", NewInputQueue("a").Input)
	b.Register("input", NewInputQueue("b").Input)

	if _, ok := base.Get("input"); ok {
		t.Error("clone registration leaked into base registry")
	}

	fa, _ := a.Get("input")
	fb, _ := b.Get("input")
	ra, _ := fa(context.Background(), nil)
	rb, _ := fb(context.Background(), nil)
	if ra != "a" || rb != "b" {
		t.Errorf("clones share input hooks: a=%v b=%v", ra, rb)
	}

	if _, ok := a.Get("shared"); !ok {
		t.Error("clone lost base function")
	}
	if len(a.List()) != 2 {
		t.Errorf("expected 2 functions in clone, got %v", a.List())
	}
}
