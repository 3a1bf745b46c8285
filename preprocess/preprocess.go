// Package preprocess rewrites contestant source before it reaches the
// interpreter and keeps track of how many lines were injected in front of it.
//
// The pass does two things:
//   - input("prompt") and input('prompt') with a literal argument become input(),
//     so prompts never leak into captured output. Calls whose argument is any
//     other expression are left alone, as are method calls such as obj.input("x").
//   - When the source calls the eval builtin, the eval shim is prepended and
//     every such call is redirected to __arena_eval, which only accepts the
//     grammar documented in package evalexpr.
//
// Both rewrites are textual and also apply inside string literals and comments.
package preprocess

import (
	"regexp"
	"strconv"
	"strings"
)

// EvalFunc is the name eval calls are redirected to.
const EvalFunc = "__arena_eval"

var (
	promptedInput = regexp.MustCompile(`(^|[^\w.])input\(\s*(?:"(?:[^"\\\n]|\\.)*"|'(?:[^'\\\n]|\\.)*')\s*\)`)
	evalCall      = regexp.MustCompile(`(^|[^\w.])eval(\s*\()`)
	lineRef       = regexp.MustCompile(`\bline (\d+)`)
)

// Pass holds the guest-side text injected ahead of every program.
type Pass struct {
	// Prelude is always prepended.
	Prelude string
	// EvalShim is prepended after the prelude when the source calls eval.
	EvalShim string
}

// Program is the result of applying a Pass.
type Program struct {
	// Code is the complete text handed to the interpreter.
	Code string
	// Offset is the number of injected lines before the contestant's line 1.
	Offset int
	// UsesEval reports whether the eval shim was injected.
	UsesEval bool
}

func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// Apply rewrites source and prepends the injected text.
func (p Pass) Apply(source string) Program {
	for promptedInput.MatchString(source) {
		source = promptedInput.ReplaceAllString(source, "${1}input()")
	}

	prefix := withNewline(p.Prelude)
	usesEval := evalCall.MatchString(source)
	if usesEval {
		// Nested calls share a delimiter with the outer match, so repeat
		// until no bare eval call is left.
		for evalCall.MatchString(source) {
			source = evalCall.ReplaceAllString(source, "${1}"+EvalFunc+"${2}")
		}
		prefix += withNewline(p.EvalShim)
	}

	return Program{
		Code:     prefix + source,
		Offset:   strings.Count(prefix, "\n"),
		UsesEval: usesEval,
	}
}

// Line maps a line number in Code back to the contestant's source.
// It returns false for lines that belong to injected text.
func (p Program) Line(n int) (int, bool) {
	if n <= p.Offset {
		return 0, false
	}
	return n - p.Offset, true
}

// AdjustMessage rewrites every "line N" reference in msg to source numbering.
// References that point into injected text are left unchanged.
func (p Program) AdjustMessage(msg string) string {
	return lineRef.ReplaceAllStringFunc(msg, func(m string) string {
		n, err := strconv.Atoi(m[len("line "):])
		if err != nil {
			return m
		}
		if line, ok := p.Line(n); ok {
			return "line " + strconv.Itoa(line)
		}
		return m
	})
}
