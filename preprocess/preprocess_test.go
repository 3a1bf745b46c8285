package preprocess

import (
	"strings"
	"testing"
)

var testPass = Pass{
	Prelude:  "import sys\nsys.setrecursionlimit(1000)",
	EvalShim: "def __arena_eval(expr):\n    return 0\n",
}

func TestApplyRewritesLiteralPrompts(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`n = input("Enter n: ")`, `n = input()`},
		{`n = input('Enter n: ')`, `n = input()`},
		{`n = input( "a \"quoted\" prompt" )`, `n = input()`},
		{`n = input()`, `n = input()`},
		{`n = input(prompt)`, `n = input(prompt)`},
		{`n = input("a" + b)`, `n = input("a" + b)`},
		{`x = raw_input("no")`, `x = raw_input("no")`},
	}

	for _, tt := range tests {
		prog := Pass{}.Apply(tt.src)
		if prog.Code != tt.want {
			t.Errorf("Apply(%q) = %q, want %q", tt.src, prog.Code, tt.want)
		}
	}
}

func TestApplyInjectsEvalShimOnlyWhenNeeded(t *testing.T) {
	plain := testPass.Apply("print(1)")
	if plain.UsesEval {
		t.Error("UsesEval set for source without eval")
	}
	if strings.Contains(plain.Code, "__arena_eval") {
		t.Error("eval shim injected without eval call")
	}
	if plain.Offset != 2 {
		t.Errorf("Offset = %d, want 2", plain.Offset)
	}

	prog := testPass.Apply(`print(eval("2+3"))`)
	if !prog.UsesEval {
		t.Fatal("UsesEval not set")
	}
	if !strings.HasSuffix(prog.Code, `print(__arena_eval("2+3"))`) {
		t.Errorf("eval call not redirected: %q", prog.Code)
	}
	if prog.Offset != 4 {
		t.Errorf("Offset = %d, want 4", prog.Offset)
	}
}

func TestApplyLeavesMethodsAndLookalikesAlone(t *testing.T) {
	src := "model.eval(x)\nmy_eval(1)\nevaluate(2)\nx = eval (s)"
	prog := Pass{}.Apply(src)
	want := "model.eval(x)\nmy_eval(1)\nevaluate(2)\nx = __arena_eval (s)"
	if prog.Code != want {
		t.Errorf("got %q, want %q", prog.Code, want)
	}
}

func TestApplyKeepsInputMethodPrompts(t *testing.T) {
	src := "form.input(\"name\")\nraw_input('x')\nn = input('n?')input(\"m?\")"
	prog := Pass{}.Apply(src)
	want := "form.input(\"name\")\nraw_input('x')\nn = input()input()"
	if prog.Code != want {
		t.Errorf("got %q, want %q", prog.Code, want)
	}
}

func TestOffsetTracksPrependedText(t *testing.T) {
	prog := testPass.Apply("x = eval(input())\nprint(y)")
	lines := strings.Split(prog.Code, "\n")
	if lines[prog.Offset] != "x = __arena_eval(input())" {
		t.Errorf("line after offset = %q", lines[prog.Offset])
	}

	if line, ok := prog.Line(prog.Offset + 2); !ok || line != 2 {
		t.Errorf("Line(%d) = %d, %v; want 2, true", prog.Offset+2, line, ok)
	}
	if _, ok := prog.Line(1); ok {
		t.Error("Line(1) should belong to injected text")
	}
}

func TestAdjustMessage(t *testing.T) {
	prog := testPass.Apply("print(x)")
	msg := `File "<string>", line 3, in <module>` + "\n" + `File "<string>", line 1`
	got := prog.AdjustMessage(msg)
	want := `File "<string>", line 1, in <module>` + "\n" + `File "<string>", line 1`
	if got != want {
		t.Errorf("AdjustMessage = %q, want %q", got, want)
	}
}

func TestApplyRewritesNestedEval(t *testing.T) {
	prog := Pass{}.Apply(`eval(eval("1"))`)
	if prog.Code != `__arena_eval(__arena_eval("1"))` {
		t.Errorf("got %q", prog.Code)
	}
}
