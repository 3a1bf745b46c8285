package executor

import (
	"testing"
	"time"

	"github.com/caffeineduck/codearena/preprocess"
)

var twoLinePrelude = preprocess.Program{Offset: 2}

func TestFailureString(t *testing.T) {
	tests := []struct {
		f    Failure
		want string
	}{
		{Failure{Type: "ZeroDivisionError", Message: "division by zero", Line: 3}, "Error: ZeroDivisionError: division by zero on line 3"},
		{Failure{Type: "KeyboardInterrupt"}, "Error: KeyboardInterrupt"},
		{Failure{Type: "ValueError", Message: "bad"}, "Error: ValueError: bad"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
		if !IsError(tt.f.String()) {
			t.Errorf("IsError(%q) = false", tt.f.String())
		}
	}
}

func TestFromReportShiftsLines(t *testing.T) {
	f := fromReport(twoLinePrelude, &guestError{Type: "NameError", Line: 5, Message: "name 'y' is not defined"})
	if f.Line != 3 {
		t.Errorf("line = %d, want 3", f.Line)
	}

	// Lines inside injected text are dropped.
	f = fromReport(twoLinePrelude, &guestError{Type: "RuntimeError", Line: 1, Message: "x"})
	if f.Line != 0 {
		t.Errorf("line = %d, want 0", f.Line)
	}
}

func TestFromTracebackSyntaxError(t *testing.T) {
	stderr := "  File \"<string>\", line 4\n    print(\n         ^\nSyntaxError: '(' was never closed\n"
	f, ok := fromTraceback(twoLinePrelude, stderr)
	if !ok {
		t.Fatal("traceback not recognised")
	}
	want := "Error: SyntaxError: '(' was never closed on line 2"
	if got := f.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFromTracebackRuntimeError(t *testing.T) {
	stderr := "Traceback (most recent call last):\n" +
		"  File \"<string>\", line 3, in <module>\n" +
		"  File \"<string>\", line 6, in f\n" +
		"json.decoder.JSONDecodeError: Expecting value: line 1 column 1 (char 0)\n"
	f, ok := fromTraceback(twoLinePrelude, stderr)
	if !ok {
		t.Fatal("traceback not recognised")
	}
	if f.Type != "JSONDecodeError" {
		t.Errorf("type = %q", f.Type)
	}
	if f.Line != 4 {
		t.Errorf("line = %d, want 4", f.Line)
	}
}

func TestFromTracebackRejectsPlainStderr(t *testing.T) {
	if _, ok := fromTraceback(twoLinePrelude, "warning\n"); ok {
		t.Error("plain stderr classified as traceback")
	}
}

func TestMissingModule(t *testing.T) {
	f := Failure{Type: "ModuleNotFoundError", Message: "No module named 'collections.abc'"}
	name, ok := f.MissingModule()
	if !ok || name != "collections" {
		t.Errorf("got %q, %v", name, ok)
	}

	f = Failure{Type: "ImportError", Message: "No module named 'json'"}
	if _, ok := f.MissingModule(); ok {
		t.Error("ImportError treated as missing module")
	}
}

func TestTimeLimit(t *testing.T) {
	got := timeLimit(5 * time.Second).String()
	want := "Error: TimeLimitExceeded: program exceeded the 5s time limit"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	b.Write([]byte("ab"))
	b.Write([]byte("cdef"))
	b.Write([]byte("g"))
	if b.String() != "abcd" {
		t.Errorf("buffer = %q", b.String())
	}
	if !b.truncated {
		t.Error("expected truncated")
	}
}
