package executor

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caffeineduck/codearena/preprocess"
)

// ErrorPrefix starts every error string a run produces.
const ErrorPrefix = "Error: "

var (
	tracebackFile  = regexp.MustCompile(`File "<string>", line (\d+)`)
	exceptionLine  = regexp.MustCompile(`^([A-Za-z_][\w.]*)(?::\s?(.*))?$`)
	missingModule  = regexp.MustCompile(`No module named '([^']+)'`)
	timeLimitError = "TimeLimitExceeded"
)

// Failure is a classified program error.
type Failure struct {
	Type    string
	Message string
	// Line is in contestant numbering; zero when unknown.
	Line int
}

// String renders the failure the way it is shown to contestants.
func (f Failure) String() string {
	var b strings.Builder
	b.WriteString(ErrorPrefix)
	b.WriteString(f.Type)
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if f.Line > 0 {
		b.WriteString(" on line ")
		b.WriteString(strconv.Itoa(f.Line))
	}
	return b.String()
}

// MissingModule returns the top-level module a ModuleNotFoundError names.
func (f Failure) MissingModule() (string, bool) {
	if f.Type != "ModuleNotFoundError" {
		return "", false
	}
	m := missingModule.FindStringSubmatch(f.Message)
	if m == nil {
		return "", false
	}
	name, _, _ := strings.Cut(m[1], ".")
	return name, true
}

// IsError reports whether output is an error string.
func IsError(output string) bool {
	return strings.HasPrefix(output, ErrorPrefix)
}

func fromReport(prog preprocess.Program, ge *guestError) Failure {
	f := Failure{Type: ge.Type, Message: prog.AdjustMessage(ge.Message)}
	if line, ok := prog.Line(ge.Line); ok {
		f.Line = line
	}
	return f
}

// fromTraceback classifies raw interpreter stderr. This is the path for
// errors raised before the excepthook is installed, such as syntax errors.
func fromTraceback(prog preprocess.Program, stderr string) (Failure, bool) {
	refs := tracebackFile.FindAllStringSubmatch(stderr, -1)
	if len(refs) == 0 {
		return Failure{}, false
	}

	var f Failure
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")

	found := false
	for i := len(lines) - 1; i >= 0; i-- {
		text := strings.TrimSpace(lines[i])
		if text == "" || strings.HasPrefix(lines[i], " ") {
			continue
		}
		m := exceptionLine.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		typ := m[1]
		if dot := strings.LastIndexByte(typ, '.'); dot >= 0 {
			typ = typ[dot+1:]
		}
		f.Type = typ
		f.Message = prog.AdjustMessage(m[2])
		found = true
		break
	}
	if !found {
		return Failure{}, false
	}

	n, _ := strconv.Atoi(refs[len(refs)-1][1])
	if line, ok := prog.Line(n); ok {
		f.Line = line
	}
	return f, true
}

func timeLimit(d time.Duration) Failure {
	return Failure{
		Type:    timeLimitError,
		Message: fmt.Sprintf("program exceeded the %v time limit", d),
	}
}

// cappedBuffer keeps at most limit bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if c.limit <= 0 {
		return c.buf.Write(p)
	}
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
